package main

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/pevans/waybackfed/status"
	"github.com/pevans/waybackfed/table"
)

var statusColumns = []table.Status{table.StatusPending, table.StatusDone, table.StatusNone, table.StatusFailed}

// printStatusTable prints per-site counts in human-readable table format
func printStatusTable(w io.Writer, statuses []*status.SiteStatus) {
	if len(statuses) == 0 {
		fmt.Fprintln(w, "No sites to display.")
		return
	}

	fmt.Fprintf(w, "%-12s %-10s %8s %8s %8s %8s %8s\n", "SITE", "TABLE", "TOTAL", "PENDING", "DONE", "NONE", "FAILED")
	for _, st := range statuses {
		printCountsRow(w, st.Site, "snapshots", st.Snapshots)
		printCountsRow(w, st.Site, "links", st.CleanedLinks)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-12s %10s %10s %10s\n", "SITE", "UNCLEANED", "RAW", "WRITTEN")
	for _, st := range statuses {
		fmt.Fprintf(w, "%-12s %10d %10d %10d\n", st.Site, st.UncleanedLinks, st.RawArticles, st.CleanedArticles)
	}
}

func printCountsRow(w io.Writer, site, name string, counts table.Counts) {
	fmt.Fprintf(w, "%-12s %-10s %8d", site, name, counts.Total())
	for _, s := range statusColumns {
		fmt.Fprintf(w, " %8d", counts[s])
	}
	fmt.Fprintln(w)
}

// printStatusJSON prints per-site counts in JSON format
func printStatusJSON(w io.Writer, statuses []*status.SiteStatus) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(statuses); err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	return nil
}
