package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/poiesic/versegrounding/core"
)

// flatVerse is one element of a flat passage array, as written by the
// extraction scripts.
type flatVerse struct {
	Book        string `json:"Book"`
	Chapter     int    `json:"Chapter"`
	Verse       int    `json:"Verse"`
	Text        string `json:"Text"`
	Translation string `json:"Translation"`
	Testament   string `json:"Testament"`
}

// translationDoc is the nested book/chapter/verse layout.
type translationDoc struct {
	Translation string `json:"translation"`
	Books       []struct {
		Name      string `json:"name"`
		Testament string `json:"testament"`
		Chapters  []struct {
			Chapter int `json:"chapter"`
			Verses  []struct {
				VerseNum int    `json:"verse_num"`
				Text     string `json:"text"`
			} `json:"verses"`
		} `json:"chapters"`
	} `json:"books"`
}

// JSONFile reads passages from a JSON file. Both the flat array layout and
// the nested translation document are accepted.
type JSONFile struct {
	path        string
	translation string
	logger      *slog.Logger
}

var _ Source = (*JSONFile)(nil)

// JSONOption configures a JSONFile.
type JSONOption func(*JSONFile)

// WithTranslation sets the translation tag for passages that lack one.
func WithTranslation(translation string) JSONOption {
	return func(f *JSONFile) {
		f.translation = translation
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) JSONOption {
	return func(f *JSONFile) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewJSONFile creates a source reading path.
func NewJSONFile(path string, opts ...JSONOption) *JSONFile {
	f := &JSONFile{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "corpus", "path", path)
	return f
}

// LoadAllPassages reads and validates every passage in the file. Invalid
// passages are skipped and logged; a file without any valid passage is an
// error.
func (f *JSONFile) LoadAllPassages(ctx context.Context) ([]core.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}

	passages, err := f.decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f.path, err)
	}

	valid, errs := core.FilterValid(passages)
	for _, e := range errs {
		f.logger.Debug("skipping passage", "err", e)
	}
	if len(errs) > 0 {
		f.logger.Warn("skipped invalid passages", "skipped", len(errs), "kept", len(valid))
	}
	if len(valid) == 0 {
		return nil, ErrNoPassages
	}

	f.logger.Info("loaded corpus", "passages", len(valid))
	return valid, nil
}

func (f *JSONFile) decode(data []byte) ([]core.Passage, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(trimmed) == 0 {
		return nil, ErrUnknownFormat
	}

	switch trimmed[0] {
	case '[':
		var verses []flatVerse
		if err := json.Unmarshal(trimmed, &verses); err != nil {
			return nil, err
		}
		passages := make([]core.Passage, len(verses))
		for i, v := range verses {
			passages[i] = core.Passage{
				Book:        v.Book,
				Chapter:     v.Chapter,
				Verse:       v.Verse,
				Testament:   v.Testament,
				Translation: f.translationOr(v.Translation),
				Text:        v.Text,
			}
		}
		return passages, nil

	case '{':
		var doc translationDoc
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, err
		}
		if len(doc.Books) == 0 {
			return nil, ErrUnknownFormat
		}
		translation := f.translationOr(doc.Translation)
		var passages []core.Passage
		for _, book := range doc.Books {
			for _, ch := range book.Chapters {
				for _, v := range ch.Verses {
					passages = append(passages, core.Passage{
						Book:        book.Name,
						Chapter:     ch.Chapter,
						Verse:       v.VerseNum,
						Testament:   book.Testament,
						Translation: translation,
						Text:        v.Text,
					})
				}
			}
		}
		return passages, nil
	}

	return nil, ErrUnknownFormat
}

func (f *JSONFile) translationOr(tag string) string {
	if tag == "" {
		return f.translation
	}
	return tag
}
