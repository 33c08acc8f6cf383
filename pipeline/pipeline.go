// Package pipeline persists extracted race results, one artifact per race.
package pipeline

import (
	"errors"
	"path/filepath"
	"regexp"

	"github.com/jorgecela/ironman-races-analysis/models"
	"github.com/jorgecela/ironman-races-analysis/parser"
)

// ErrAlreadyFlushed is returned when a result set is flushed twice.
var ErrAlreadyFlushed = errors.New("pipeline: result set already flushed")

// OutputWriter defines the interface for artifact output.
type OutputWriter interface {
	Write(records []*models.ResultRecord) error
	Close() error
	Validate() error
}

// Sink creates one artifact writer per race.
type Sink interface {
	OpenRace(raceName string) (OutputWriter, error)
	ArtifactPath(raceName string) string
}

// ResultSet accumulates the records extracted for one race in insertion
// order. It is owned by the race driver for the duration of that race and
// flushed to the race's artifact exactly once, on success or abort alike.
type ResultSet struct {
	records    []*models.ResultRecord
	validation map[string]int
	flushed    bool
}

// NewResultSet returns an empty result set.
func NewResultSet() *ResultSet {
	return &ResultSet{validation: make(map[string]int)}
}

// Append adds a record, keeping insertion order. Records whose populated
// fields disagree with their designation's shape are counted but never
// dropped; partial rows are preferred over missing rows.
func (rs *ResultSet) Append(record *models.ResultRecord) {
	if record == nil {
		return
	}
	if err := parser.ValidateRecord(record); err != nil {
		rs.validation["invalid_shape"]++
	}
	rs.records = append(rs.records, record)
}

// Len reports the number of accumulated records.
func (rs *ResultSet) Len() int {
	return len(rs.records)
}

// Records returns the accumulated records in insertion order.
func (rs *ResultSet) Records() []*models.ResultRecord {
	return rs.records
}

// ValidationErrors returns a snapshot of shape-violation counts.
func (rs *ResultSet) ValidationErrors() map[string]int {
	out := make(map[string]int, len(rs.validation))
	for k, v := range rs.validation {
		out[k] = v
	}
	return out
}

// Flush writes every accumulated record through the writer and closes it.
// A set with zero records still produces a (header-only) artifact so that
// storage keeps a 1:1 correspondence with the race catalog.
func (rs *ResultSet) Flush(writer OutputWriter) (int, error) {
	if rs.flushed {
		return 0, ErrAlreadyFlushed
	}
	rs.flushed = true

	if err := writer.Write(rs.records); err != nil {
		writer.Close()
		return 0, err
	}
	if err := writer.Close(); err != nil {
		return 0, err
	}
	return len(rs.records), nil
}

var nonWord = regexp.MustCompile(`\W+`)

// SafeName collapses every non-word run in a race name into a single
// underscore, yielding a filesystem-safe artifact token.
func SafeName(raceName string) string {
	return nonWord.ReplaceAllString(raceName, "_")
}

// FileSink writes per-race artifacts beneath a directory in one of the
// supported formats (csv, json, dual).
type FileSink struct {
	dir    string
	format string
}

// NewFileSink builds a sink rooted at dir.
func NewFileSink(dir, format string) *FileSink {
	return &FileSink{dir: dir, format: format}
}

// OpenRace creates the artifact writer for one race.
func (s *FileSink) OpenRace(raceName string) (OutputWriter, error) {
	base := filepath.Join(s.dir, SafeName(raceName))
	switch s.format {
	case "json":
		return NewJSONWriter(base + ".jsonl")
	case "dual":
		return NewDualWriter(base+".csv", base+".jsonl")
	default:
		return NewCSVWriter(base + ".csv")
	}
}

// ArtifactPath reports where the race's primary artifact lands.
func (s *FileSink) ArtifactPath(raceName string) string {
	base := filepath.Join(s.dir, SafeName(raceName))
	if s.format == "json" {
		return base + ".jsonl"
	}
	return base + ".csv"
}
