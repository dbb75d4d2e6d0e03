package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/wavecrawl/internal/config"
	"github.com/nao1215/wavecrawl/internal/database"
	"github.com/nao1215/wavecrawl/internal/model"
)

// seedHistory stores two crawls of shop.example and one of blog.example and
// returns the IDs of the shop crawls, oldest first.
func seedHistory(t *testing.T) (*database.CrawlDB, string, []string) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	crawl := func(domain string, started time.Time, targets ...string) string {
		result := model.NewCrawlResult(domain)
		result.Seed = "https://" + domain + "/"
		result.StartedAt = started
		result.FinishedAt = started.Add(time.Second)
		result.StopReason = model.StopExhausted
		for _, path := range targets {
			page := model.RestorePage("https://"+domain+path, "Product "+path, true, "")
			result.TargetPages[page.URL()] = page
			result.Visited = append(result.Visited, page.URL())
		}
		home := model.RestorePage(result.Seed, "Home", false, "")
		result.OtherPages[home.URL()] = home

		id, err := db.SaveCrawl(context.Background(), result)
		if err != nil {
			t.Fatalf("failed to save crawl: %v", err)
		}
		return id
	}

	older := crawl("shop.example", base, "/p/1", "/p/2")
	newer := crawl("shop.example", base.Add(time.Hour), "/p/2", "/p/3")
	crawl("blog.example", base.Add(2*time.Hour))
	return db, dir, []string{older, newer}
}

func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()
	if cmd.Use != "history [domain]" {
		t.Errorf("unexpected Use: got %q", cmd.Use)
	}

	flagsWithShort := map[string]string{
		"limit":   "n",
		"domains": "L",
		"show":    "i",
		"format":  "f",
		"json":    "j",
	}
	for flag, shorthand := range flagsWithShort {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			t.Errorf("expected flag %q to exist", flag)
			continue
		}
		if f.Shorthand != shorthand {
			t.Errorf("flag %q: expected shorthand %q, got %q", flag, shorthand, f.Shorthand)
		}
	}
	for _, flag := range []string{"latest", "compare", "delete", "others", "db-dir"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected flag %q to exist", flag)
		}
	}
}

func TestRunHistory(t *testing.T) {
	t.Parallel()

	t.Run("lists domains", func(t *testing.T) {
		t.Parallel()
		db, _, _ := seedHistory(t)

		var out bytes.Buffer
		if err := runHistory(context.Background(), db, historyOptions{listDomains: true}, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "Crawled domains (2)") {
			t.Errorf("unexpected output:\n%s", out.String())
		}
		if strings.Index(out.String(), "blog.example") > strings.Index(out.String(), "shop.example") {
			t.Errorf("expected domains in alphabetical order:\n%s", out.String())
		}
	})

	t.Run("lists crawls of a domain", func(t *testing.T) {
		t.Parallel()
		db, _, ids := seedHistory(t)

		var out bytes.Buffer
		opts := historyOptions{domain: "shop.example", limit: defaultHistoryLimit}
		if err := runHistory(context.Background(), db, opts, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := out.String()
		if !strings.Contains(output, "Crawl history for shop.example (2 crawls)") {
			t.Errorf("unexpected header:\n%s", output)
		}
		if strings.Index(output, ids[1]) > strings.Index(output, ids[0]) {
			t.Errorf("expected newest crawl first:\n%s", output)
		}
		if strings.Contains(output, "blog.example") {
			t.Errorf("unexpected other domain:\n%s", output)
		}
	})

	t.Run("limits the listing", func(t *testing.T) {
		t.Parallel()
		db, _, ids := seedHistory(t)

		var out bytes.Buffer
		if err := runHistory(context.Background(), db, historyOptions{limit: 1}, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "(1 crawls)") {
			t.Errorf("unexpected output:\n%s", out.String())
		}
		if strings.Contains(out.String(), ids[0]) {
			t.Errorf("expected only the newest crawl:\n%s", out.String())
		}
	})

	t.Run("empty history", func(t *testing.T) {
		t.Parallel()
		db, _, _ := seedHistory(t)

		var out bytes.Buffer
		if err := runHistory(context.Background(), db, historyOptions{domain: "none.example"}, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "No crawl history found for none.example") {
			t.Errorf("unexpected output:\n%s", out.String())
		}
	})

	t.Run("shows a stored crawl", func(t *testing.T) {
		t.Parallel()
		db, _, ids := seedHistory(t)

		var out bytes.Buffer
		opts := historyOptions{showID: ids[0], format: "csv"}
		if err := runHistory(context.Background(), db, opts, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "https://shop.example/p/1") {
			t.Errorf("expected stored target in export:\n%s", out.String())
		}
		if strings.Contains(out.String(), "https://shop.example/p/3") {
			t.Errorf("unexpected page of another crawl:\n%s", out.String())
		}
	})

	t.Run("shows the latest crawl", func(t *testing.T) {
		t.Parallel()
		db, _, _ := seedHistory(t)

		var out bytes.Buffer
		opts := historyOptions{domain: "shop.example", latest: true, format: "text"}
		if err := runHistory(context.Background(), db, opts, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "https://shop.example/p/3") {
			t.Errorf("expected latest target in export:\n%s", out.String())
		}
	})

	t.Run("latest without history", func(t *testing.T) {
		t.Parallel()
		db, _, _ := seedHistory(t)

		opts := historyOptions{domain: "none.example", latest: true, format: "text"}
		if err := runHistory(context.Background(), db, opts, &bytes.Buffer{}); err == nil {
			t.Error("expected error for a domain without crawls")
		}
	})

	t.Run("deletes a crawl", func(t *testing.T) {
		t.Parallel()
		db, _, ids := seedHistory(t)

		var out bytes.Buffer
		if err := runHistory(context.Background(), db, historyOptions{deleteID: ids[0]}, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := db.GetCrawl(context.Background(), ids[0]); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}

		err := runHistory(context.Background(), db, historyOptions{deleteID: ids[0]}, &out)
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound for a second delete, got %v", err)
		}
	})

	t.Run("compares the latest two crawls", func(t *testing.T) {
		t.Parallel()
		db, _, _ := seedHistory(t)

		var out bytes.Buffer
		opts := historyOptions{domain: "shop.example", compare: true}
		if err := runHistory(context.Background(), db, opts, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := out.String()
		for _, want := range []string{
			"[+] https://shop.example/p/3",
			"[-] https://shop.example/p/1",
			"Unchanged: 1 targets",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected %q in output:\n%s", want, output)
			}
		}
	})

	t.Run("compares in JSON", func(t *testing.T) {
		t.Parallel()
		db, _, ids := seedHistory(t)

		var out bytes.Buffer
		opts := historyOptions{domain: "shop.example", compare: true, jsonOutput: true}
		if err := runHistory(context.Background(), db, opts, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got CrawlComparison
		if err := json.Unmarshal(out.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out.String())
		}
		if got.Previous.ID != ids[0] || got.Current.ID != ids[1] {
			t.Errorf("unexpected crawls: previous %s, current %s", got.Previous.ID, got.Current.ID)
		}
		if len(got.NewTargets) != 1 || len(got.RemovedTargets) != 1 || got.UnchangedCount != 1 {
			t.Errorf("unexpected comparison: %+v", got)
		}
	})

	t.Run("compare needs two crawls", func(t *testing.T) {
		t.Parallel()
		db, _, _ := seedHistory(t)

		opts := historyOptions{domain: "blog.example", compare: true}
		if err := runHistory(context.Background(), db, opts, &bytes.Buffer{}); err == nil {
			t.Error("expected error with a single crawl")
		}
	})
}

func TestRunHistoryCmd(t *testing.T) {
	t.Parallel()

	t.Run("lists crawls through the command", func(t *testing.T) {
		t.Parallel()
		_, dir, ids := seedHistory(t)

		cmd := NewHistoryCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--db-dir", dir, "shop.example"})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), ids[1]) {
			t.Errorf("expected crawl ID in output:\n%s", out.String())
		}
	})

	t.Run("requires a domain for --compare", func(t *testing.T) {
		t.Parallel()
		cmd := NewHistoryCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--db-dir", t.TempDir(), "--compare"})

		if err := cmd.Execute(); err == nil {
			t.Error("expected error without a domain")
		}
	})

	t.Run("rejects an unknown format", func(t *testing.T) {
		t.Parallel()
		cmd := NewHistoryCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--db-dir", t.TempDir(), "-f", "xml"})

		if err := cmd.Execute(); !errors.Is(err, config.ErrInvalidFormat) {
			t.Errorf("expected ErrInvalidFormat, got %v", err)
		}
	})
}

func TestFormatDelta(t *testing.T) {
	t.Parallel()

	tests := map[int]string{3: "+3", 0: "0", -2: "-2"}
	for in, want := range tests {
		if got := formatDelta(in); got != want {
			t.Errorf("formatDelta(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("shop.example", 24); got != "shop.example" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("a-very-long-domain-name.example", 10); got != "a-very-..." {
		t.Errorf("truncate() = %q", got)
	}
}
