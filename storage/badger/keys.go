package badger

// Key prefixes for different data types
const (
	cacheRecordPrefix = "cacherec"
	defaultCacheName  = "embeddings"
)

// makeCacheRecordKey generates the key holding the named cache record.
func makeCacheRecordKey(name string) []byte {
	return []byte(cacheRecordPrefix + ":" + name)
}
