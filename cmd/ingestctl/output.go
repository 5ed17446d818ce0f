package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/helixir/paper-ingest-service/internal/corpus"
	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/ingest"
	"github.com/helixir/paper-ingest-service/internal/papersources/huggingface"
)

const dateLayout = "2006-01-02"

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func count(n int) string {
	return humanize.Comma(int64(n))
}

// when prints an absolute date followed by its distance from now.
func when(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s (%s)", t.UTC().Format(time.RFC3339), humanize.Time(t))
}

func printCycle(w io.Writer, r ingest.CycleResult) {
	tw := newTable(w)
	fmt.Fprintf(tw, "cycle\t%s\n", r.CycleID)
	fmt.Fprintf(tw, "outcome\t%s\n", r.Outcome)
	fmt.Fprintf(tw, "threshold\t%s\n", r.Threshold.UTC().Format(time.RFC3339))
	fmt.Fprintf(tw, "candidates\t%s\n", count(r.Candidates))
	fmt.Fprintf(tw, "unique\t%s\n", count(r.Unique))
	fmt.Fprintf(tw, "dropped\t%s\n", count(r.Dropped))
	fmt.Fprintf(tw, "enriched\t%s\n", count(r.Enriched))
	fmt.Fprintf(tw, "evicted\t%s\n", count(r.Evicted))
	fmt.Fprintf(tw, "duration\t%s\n", r.Duration.Round(time.Millisecond))
	_ = tw.Flush()

	if len(r.ProviderFailures) > 0 {
		fmt.Fprintln(w, "\nprovider failures:")
		providers := make([]string, 0, len(r.ProviderFailures))
		for p := range r.ProviderFailures {
			providers = append(providers, p)
		}
		sort.Strings(providers)
		tw = newTable(w)
		for _, p := range providers {
			fmt.Fprintf(tw, "  %s\t%s\n", p, r.ProviderFailures[p])
		}
		_ = tw.Flush()
	}

	if r.Backfill != nil {
		fmt.Fprintln(w, "\nbackfill:")
		printBackfill(w, *r.Backfill)
	}
}

func printBackfill(w io.Writer, r ingest.BackfillResult) {
	tw := newTable(w)
	fmt.Fprintf(tw, "threshold\t%d per month\n", r.Threshold)
	fmt.Fprintf(tw, "flagged\t%s\n", months(r.Flagged))
	fmt.Fprintf(tw, "attempted\t%s\n", months(r.Attempted))
	fmt.Fprintf(tw, "filled\t%s\n", months(r.Filled))
	fmt.Fprintf(tw, "added\t%s\n", count(r.Added))
	_ = tw.Flush()

	if len(r.Errors) > 0 {
		keys := make([]string, 0, len(r.Errors))
		for k := range r.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "errors:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, r.Errors[k])
		}
	}
}

func months(ms []ingest.Month) string {
	if len(ms) == 0 {
		return "-"
	}
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = fmt.Sprintf("%s(%d)", m, m.Count)
	}
	return strings.Join(parts, " ")
}

func printStats(w io.Writer, snap *domain.Snapshot, top int) {
	fmt.Fprintf(w, "corpus size: %s records\n", count(len(snap.Records)))
	if len(snap.CategoryStats) == 0 {
		return
	}

	type row struct {
		category string
		n        int
	}
	rows := make([]row, 0, len(snap.CategoryStats))
	for c, n := range snap.CategoryStats {
		rows = append(rows, row{c, n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].n != rows[j].n {
			return rows[i].n > rows[j].n
		}
		return rows[i].category < rows[j].category
	})
	if top > 0 && len(rows) > top {
		rows = rows[:top]
	}

	fmt.Fprintln(w)
	tw := newTable(w)
	fmt.Fprintln(tw, "CATEGORY\tRECORDS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r.category, count(r.n))
	}
	_ = tw.Flush()
}

func printWatermark(w io.Writer, snap *domain.Snapshot) {
	tw := newTable(w)
	fmt.Fprintf(tw, "newest\t%s\n", when(snap.Watermark.Newest))
	fmt.Fprintf(tw, "oldest\t%s\n", when(snap.Watermark.Oldest))
	fmt.Fprintf(tw, "last fetch\t%s\n", when(snap.LastFetchTime))
	fmt.Fprintf(tw, "corpus size\t%s\n", count(len(snap.Records)))
	_ = tw.Flush()
}

func printRecords(w io.Writer, page corpus.Page) {
	tw := newTable(w)
	fmt.Fprintln(tw, "PUBLISHED\tPROVIDER\tTITLE")
	for _, r := range page.Records {
		published := "-"
		if !r.PublishedAt.IsZero() {
			published = r.PublishedAt.UTC().Format(dateLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", published, r.SourceProvider, truncate(r.Title, 80))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%s of %s matching records\n", count(len(page.Records)), count(page.Total))
}

func printPaper(w io.Writer, r domain.Record, artifacts *huggingface.Artifacts) {
	fmt.Fprintln(w, r.Title)
	tw := newTable(w)
	if !r.PublishedAt.IsZero() {
		fmt.Fprintf(tw, "published\t%s\n", r.PublishedAt.UTC().Format(dateLayout))
	}
	if len(r.Authors) > 0 {
		fmt.Fprintf(tw, "authors\t%s\n", strings.Join(r.Authors, ", "))
	}
	if r.URL != "" {
		fmt.Fprintf(tw, "url\t%s\n", r.URL)
	}
	if len(r.Tags) > 0 {
		fmt.Fprintf(tw, "tags\t%s\n", strings.Join(r.Tags, ", "))
	}
	_ = tw.Flush()

	if artifacts == nil {
		return
	}
	fmt.Fprintf(w, "\n%s artifacts cite this paper\n", count(artifacts.Total()))
	tw = newTable(w)
	for _, group := range [][]huggingface.Artifact{artifacts.Models, artifacts.Datasets, artifacts.Spaces} {
		for _, a := range group {
			fmt.Fprintf(tw, "  %s\t%s\t%s downloads\t%s likes\n", a.Kind, a.ID, count(a.Downloads), count(a.Likes))
		}
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
