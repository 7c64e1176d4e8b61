// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"
	"time"

	mus "github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/versegrounding/core"
)

// recordFormatVersion is the leading byte of every encoded CacheRecord.
const recordFormatVersion byte = 1

// CacheRecordMUS serializes CacheRecord values.
//
// Layout: version byte, created-at (unix micro, varint), model ID,
// strategy, chunk count, entry count, then per entry the chunk ID (raw
// uint64), dimension and raw float32 components.
var CacheRecordMUS = cacheRecordMUS{}

var _ mus.Serializer[CacheRecord] = cacheRecordMUS{}

type cacheRecordMUS struct{}

func (cacheRecordMUS) Marshal(r CacheRecord, bs []byte) (n int) {
	bs[0] = recordFormatVersion
	n = 1
	n += varint.Int64.Marshal(r.CreatedAt.UnixMicro(), bs[n:])
	n += ord.String.Marshal(r.ModelID, bs[n:])
	n += ord.String.Marshal(string(r.Strategy), bs[n:])
	n += varint.Int.Marshal(r.ChunkCount, bs[n:])
	n += varint.Int.Marshal(len(r.Entries), bs[n:])
	for _, e := range r.Entries {
		n += raw.Uint64.Marshal(uint64(e.ChunkId), bs[n:])
		n += varint.Int.Marshal(len(e.Vector), bs[n:])
		for _, f := range e.Vector {
			n += raw.Float32.Marshal(f, bs[n:])
		}
	}
	return n
}

func (cacheRecordMUS) Size(r CacheRecord) (size int) {
	size = 1
	size += varint.Int64.Size(r.CreatedAt.UnixMicro())
	size += ord.String.Size(r.ModelID)
	size += ord.String.Size(string(r.Strategy))
	size += varint.Int.Size(r.ChunkCount)
	size += varint.Int.Size(len(r.Entries))
	for _, e := range r.Entries {
		size += raw.Uint64.Size(uint64(e.ChunkId))
		size += varint.Int.Size(len(e.Vector))
		for _, f := range e.Vector {
			size += raw.Float32.Size(f)
		}
	}
	return size
}

func (cacheRecordMUS) Unmarshal(bs []byte) (r CacheRecord, n int, err error) {
	if len(bs) == 0 {
		return r, 0, ErrTruncatedData
	}
	if bs[0] != recordFormatVersion {
		return r, 0, fmt.Errorf("%w: version %d", ErrUnsupportedFormat, bs[0])
	}
	n = 1

	var m int
	var micros int64
	if micros, m, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return r, n, err
	}
	n += m
	r.CreatedAt = time.UnixMicro(micros).UTC()

	if r.ModelID, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return r, n, err
	}
	n += m

	var strategy string
	if strategy, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return r, n, err
	}
	n += m
	r.Strategy = core.Strategy(strategy)

	if r.ChunkCount, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return r, n, err
	}
	n += m

	var count int
	if count, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return r, n, err
	}
	n += m
	// Every entry needs at least an ID and a dimension.
	if count < 0 || count > (len(bs)-n)/9 {
		return r, n, ErrTruncatedData
	}

	r.Entries = make([]CacheEntry, count)
	for i := range r.Entries {
		var id uint64
		if id, m, err = raw.Uint64.Unmarshal(bs[n:]); err != nil {
			return r, n, err
		}
		n += m

		var dim int
		if dim, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
			return r, n, err
		}
		n += m
		if dim < 0 || dim > (len(bs)-n)/4 {
			return r, n, ErrTruncatedData
		}

		vector := make([]float32, dim)
		for j := range vector {
			if vector[j], m, err = raw.Float32.Unmarshal(bs[n:]); err != nil {
				return r, n, err
			}
			n += m
		}
		r.Entries[i] = CacheEntry{ChunkId: core.ID(id), Vector: vector}
	}
	return r, n, nil
}

func (s cacheRecordMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

// MarshalCacheRecord serializes a CacheRecord to bytes.
func MarshalCacheRecord(record *CacheRecord) []byte {
	buf := make([]byte, CacheRecordMUS.Size(*record))
	CacheRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalCacheRecord deserializes a CacheRecord from bytes.
// Any decoding failure is reported as ErrSerializationFailed.
func UnmarshalCacheRecord(data []byte) (*CacheRecord, error) {
	record, n, err := CacheRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return &record, nil
}
