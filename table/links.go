package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// Link is one row of a link table: a candidate article URL recovered from a
// snapshot, tagged with that snapshot's timestamp.
type Link struct {
	ID     string
	URL    string
	Status Status
}

// LoadLinks reads a headerless link table. A missing file is an empty table.
func LoadLinks(path string) ([]Link, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open link table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3

	var rows []Link
	for line := 1; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read link table: %w", err)
		}

		status, err := ParseStatus(record[2])
		if err != nil {
			return nil, fmt.Errorf("link table line %d: %w", line, err)
		}
		rows = append(rows, Link{ID: record[0], URL: record[1], Status: status})
	}

	return rows, nil
}

// SaveLinks rewrites a link table.
func SaveLinks(path string, rows []Link) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		return writeLinks(w, rows)
	})
}

// AppendLinks appends rows to a link table, creating it if needed.
func AppendLinks(path string, rows []Link) error {
	if len(rows) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open link table: %w", err)
	}

	if err := writeLinks(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close link table: %w", err)
	}
	return nil
}

func writeLinks(w io.Writer, rows []Link) error {
	cw := csv.NewWriter(w)
	for _, row := range rows {
		if err := cw.Write([]string{row.ID, row.URL, string(row.Status)}); err != nil {
			return fmt.Errorf("failed to write link row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CountLinks tallies link rows per status.
func CountLinks(rows []Link) Counts {
	counts := Counts{}
	for _, row := range rows {
		counts[row.Status]++
	}
	return counts
}

// ResetLinks moves rows with status from back to pending and returns how
// many changed.
func ResetLinks(rows []Link, from Status) int {
	n := 0
	for i := range rows {
		if rows[i].Status == from && from != StatusPending {
			rows[i].Status = StatusPending
			n++
		}
	}
	return n
}
