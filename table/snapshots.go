package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

var snapshotHeader = []string{"timestamp", "url", "status"}

// Snapshot is one row of the snapshot table: the closest archived capture
// found for a day.
type Snapshot struct {
	Timestamp string
	URL       string
	Status    Status
}

// LoadSnapshots reads a snapshot table. A missing file is an empty table.
func LoadSnapshots(path string) ([]Snapshot, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(snapshotHeader)

	var rows []Snapshot
	for line := 1; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot table: %w", err)
		}
		if line == 1 && record[0] == snapshotHeader[0] {
			continue
		}

		status, err := ParseStatus(record[2])
		if err != nil {
			return nil, fmt.Errorf("snapshot table line %d: %w", line, err)
		}
		rows = append(rows, Snapshot{
			Timestamp: record[0],
			URL:       record[1],
			Status:    status,
		})
	}

	return rows, nil
}

// SaveSnapshots rewrites the snapshot table, header included.
func SaveSnapshots(path string, rows []Snapshot) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(snapshotHeader); err != nil {
			return fmt.Errorf("failed to write snapshot header: %w", err)
		}
		for _, row := range rows {
			if err := cw.Write([]string{row.Timestamp, row.URL, string(row.Status)}); err != nil {
				return fmt.Errorf("failed to write snapshot row: %w", err)
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// DedupeSnapshots drops rows whose timestamp was already seen, keeping the
// first occurrence.
func DedupeSnapshots(rows []Snapshot) []Snapshot {
	seen := make(map[string]bool, len(rows))
	out := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		if seen[row.Timestamp] {
			continue
		}
		seen[row.Timestamp] = true
		out = append(out, row)
	}
	return out
}

// CountSnapshots tallies snapshot rows per status.
func CountSnapshots(rows []Snapshot) Counts {
	counts := Counts{}
	for _, row := range rows {
		counts[row.Status]++
	}
	return counts
}

// ResetSnapshots moves rows with status from back to pending and returns how
// many changed.
func ResetSnapshots(rows []Snapshot, from Status) int {
	n := 0
	for i := range rows {
		if rows[i].Status == from && from != StatusPending {
			rows[i].Status = StatusPending
			n++
		}
	}
	return n
}
