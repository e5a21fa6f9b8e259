// Package newsfeed stores normalized article records as a JSON Lines stream.
package newsfeed

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// NewsFeed is an append-only JSON Lines file of article records.
type NewsFeed struct {
	path string
}

// ReadError describes a line that could not be decoded.
type ReadError struct {
	Line int
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// ListResult contains the records of a feed along with any per-line errors
// that occurred while reading it.
type ListResult struct {
	Items  []ArticleRecord
	Errors []ReadError
}

// NewNewsFeed creates a feed stored at path, creating its directory if it
// doesn't exist.
func NewNewsFeed(path string) (*NewsFeed, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create feed directory: %w", err)
	}

	return &NewsFeed{path: path}, nil
}

// Path returns the file backing the feed.
func (nf *NewsFeed) Path() string {
	return nf.path
}

// Add appends a record as a single line. Existing lines are never rewritten.
func (nf *NewsFeed) Add(rec ArticleRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to marshal article record: %w", err)
	}

	f, err := os.OpenFile(nf.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open feed: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write article record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close feed: %w", err)
	}

	return nil
}

// List returns every record in the feed. Lines that fail to decode are
// collected in the result's Errors rather than failing the whole read. A
// missing file is an empty feed.
func (nf *NewsFeed) List() (*ListResult, error) {
	f, err := os.Open(nf.path)
	if errors.Is(err, os.ErrNotExist) {
		return &ListResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open feed: %w", err)
	}
	defer f.Close()

	result := &ListResult{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64<<20)

	for line := 1; scanner.Scan(); line++ {
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var rec ArticleRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			result.Errors = append(result.Errors, ReadError{Line: line, Err: err})
			continue
		}
		result.Items = append(result.Items, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}

	return result, nil
}

// Count returns the number of non-empty lines in the feed.
func (nf *NewsFeed) Count() (int, error) {
	result, err := nf.List()
	if err != nil {
		return 0, err
	}
	return len(result.Items) + len(result.Errors), nil
}
