// Package catalog loads the race catalog produced by the discovery crawl.
package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/jorgecela/ironman-races-analysis/models"
)

// resultsSuffix is the conventional suffix a race entry URL needs to resolve
// to its results-capable page.
const resultsSuffix = "-results"

// Load reads RaceTargets from a CSV catalog at a local path or an http(s)
// URL. The catalog must carry a header row naming a race-name column and a
// URL column; both the discovery crawl's headers ("Race Name", "URL") and
// plain ("name", "url") ones are accepted. Entry URLs missing the results
// suffix get it appended.
func Load(ctx context.Context, path string, client *http.Client) ([]models.RaceTarget, error) {
	reader, closer, err := open(ctx, path, client)
	if err != nil {
		return nil, err
	}
	defer closer()

	return parse(reader)
}

func open(ctx context.Context, path string, client *http.Client) (io.Reader, func() error, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("build catalog request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch catalog: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, nil, fmt.Errorf("fetch catalog: unexpected status %d", resp.StatusCode)
		}
		return resp.Body, resp.Body.Close, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open catalog: %w", err)
	}
	return f, f.Close, nil
}

func parse(r io.Reader) ([]models.RaceTarget, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}

	nameCol, urlCol := -1, -1
	for i, column := range header {
		switch strings.ToLower(strings.TrimSpace(column)) {
		case "race name", "race", "name":
			nameCol = i
		case "url":
			urlCol = i
		}
	}
	if nameCol < 0 || urlCol < 0 {
		return nil, fmt.Errorf("catalog header %v lacks race name or url column", header)
	}

	var targets []models.RaceTarget
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog line %d: %w", line, err)
		}
		if nameCol >= len(row) || urlCol >= len(row) {
			continue
		}

		name := strings.TrimSpace(row[nameCol])
		entryURL := strings.TrimSpace(row[urlCol])
		if name == "" || entryURL == "" {
			continue
		}

		targets = append(targets, models.RaceTarget{
			Name:     name,
			EntryURL: EnsureResultsSuffix(entryURL),
		})
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("catalog holds no race targets")
	}
	return targets, nil
}

// EnsureResultsSuffix appends the results suffix to an entry URL that lacks
// it.
func EnsureResultsSuffix(entryURL string) string {
	if strings.HasSuffix(entryURL, resultsSuffix) {
		return entryURL
	}
	return entryURL + resultsSuffix
}
