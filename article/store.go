package article

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/pevans/waybackfed/table"
	om "github.com/wk8/go-ordered-map/v2"
)

// RawStore is the raw article map, URL to record, kept in insertion order.
type RawStore struct {
	path    string
	records *om.OrderedMap[string, RawRecord]
}

// LoadRawStore reads the store at path. A missing file is an empty store.
func LoadRawStore(path string) (*RawStore, error) {
	store := &RawStore{path: path, records: om.New[string, RawRecord]()}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read article store: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return store, nil
	}

	if err := json.Unmarshal(data, store.records); err != nil {
		return nil, fmt.Errorf("failed to parse article store: %w", err)
	}
	return store, nil
}

// Put stores rec under url. Replacing a record keeps its original position.
func (s *RawStore) Put(url string, rec RawRecord) {
	s.records.Set(url, rec)
}

// Get returns the record stored under url.
func (s *RawStore) Get(url string) (RawRecord, bool) {
	return s.records.Get(url)
}

// Len returns the number of stored records.
func (s *RawStore) Len() int {
	return s.records.Len()
}

// Keys returns the stored URLs in insertion order.
func (s *RawStore) Keys() []string {
	keys := make([]string, 0, s.records.Len())
	for pair := s.records.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Save writes the store as an indented JSON object with four-space
// indentation, leaving HTML and non-ASCII characters unescaped.
func (s *RawStore) Save() error {
	var compact bytes.Buffer
	enc := json.NewEncoder(&compact)
	enc.SetEscapeHTML(false)

	compact.WriteByte('{')
	for pair := s.records.Oldest(); pair != nil; pair = pair.Next() {
		if compact.Len() > 1 {
			compact.WriteByte(',')
		}
		if err := enc.Encode(pair.Key); err != nil {
			return fmt.Errorf("failed to encode article key: %w", err)
		}
		compact.WriteByte(':')
		if err := enc.Encode(pair.Value); err != nil {
			return fmt.Errorf("failed to encode article %s: %w", pair.Key, err)
		}
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "    "); err != nil {
		return fmt.Errorf("failed to indent article store: %w", err)
	}
	out.WriteByte('\n')

	return table.WriteFileAtomic(s.path, func(w io.Writer) error {
		_, err := w.Write(out.Bytes())
		return err
	})
}
