// Package browser owns the live automation context for the results widget:
// the retried interaction primitive, the session surface the extraction flow
// drives, and its Playwright implementation.
package browser

import "context"

// Grid cell field names exposed by the results table.
const (
	FieldAthlete    = "athlete"
	FieldSwimTime   = "wtc_swimtimeformatted"
	FieldT1         = "wtc_transition1timeformatted"
	FieldBikeTime   = "wtc_biketimeformatted"
	FieldT2         = "wtc_transitiontime2formatted"
	FieldRunTime    = "wtc_runtimeformatted"
	FieldFinishTime = "wtc_finishtimeformatted"
)

// Detail labels shown in a row's expanded panel. Detail values are anchored
// by label rather than position because the column order is not stable.
const (
	DetailDesignation = "Designation"
	DetailDivRank     = "Div Rank"
	DetailGenderRank  = "Gender Rank"
	DetailOverallRank = "Overall Rank"
	DetailDivision    = "Division"
)

// Session is one live automation context pointed at a race's results widget.
// A session lives for at most one date facet under the per-date recycle
// schedule and is never shared across races. Implementations perform single
// bounded attempts; retry policy is applied by callers through Attempt.
type Session interface {
	// DateLabels opens the date selector, reads all option labels in
	// positional order, and closes the selector again.
	DateLabels(ctx context.Context) ([]string, error)

	// SelectDate re-opens the selector, re-resolves the option at the given
	// ordinal index (the selector DOM is rebuilt between visits), selects it,
	// and returns its label.
	SelectDate(ctx context.Context, index int) (string, error)

	// MaximizePageSize sets the rows-per-page control to its maximum and
	// waits for the table to reload.
	MaximizePageSize(ctx context.Context) error

	// Rows resolves the result rows of the currently loaded page in ordinal
	// order. Row handles re-resolve themselves on every read.
	Rows(ctx context.Context) ([]Row, error)

	// NextPage probes the next-page control. It reports false when the
	// control is absent or disabled. After a successful click it waits for
	// the previous row set to go stale as proof the table actually
	// transitioned; a click without observed staleness is an error.
	NextPage(ctx context.Context) (bool, error)

	// Close tears down the automation context.
	Close() error
}

// Row is a handle on one result row of the current page.
type Row interface {
	Ordinal() int

	// Expand clicks the row open to reveal its detail panel.
	Expand(ctx context.Context) error

	// Collapse clicks the row closed again.
	Collapse(ctx context.Context) error

	// Cell reads a collapsed-grid cell by its data field name.
	Cell(ctx context.Context, field string) (string, error)

	// Detail reads a value from the expanded panel by its label.
	Detail(ctx context.Context, label string) (string, error)
}

// Factory opens a fresh session against a race entry URL: navigate to the
// entry page, resolve the embedded results frame, and enter it. The whole
// sequence is a single attempt; the session lifecycle manager retries it as
// a unit.
type Factory interface {
	Open(ctx context.Context, entryURL string) (Session, error)
}
