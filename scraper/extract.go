package scraper

import (
	"context"
	"log/slog"

	"github.com/jorgecela/ironman-races-analysis/browser"
	"github.com/jorgecela/ironman-races-analysis/config"
	"github.com/jorgecela/ironman-races-analysis/models"
	"github.com/jorgecela/ironman-races-analysis/parser"
)

// Extractor pulls one ResultRecord out of a result row. The designation is
// read first and decides which field set is extracted; each field read is
// retried independently and recorded as the sentinel when it never resolves.
// Partial rows are preferred over dropped rows.
type Extractor struct {
	cfg     *config.Config
	metrics *Metrics
}

// NewExtractor builds an extractor with the configured retry budget.
func NewExtractor(cfg *config.Config, metrics *Metrics) *Extractor {
	return &Extractor{cfg: cfg, metrics: metrics}
}

func (e *Extractor) policy() browser.RetryPolicy {
	return browser.RetryPolicy{MaxRetries: e.cfg.MaxRetries, Delay: e.cfg.RetryDelay}
}

// Extract expands the row, reads the fields mandated by its designation and
// collapses the row again. Only a row that cannot even be expanded is
// reported as unavailable; every lesser failure is contained as a sentinel
// field.
func (e *Extractor) Extract(ctx context.Context, row browser.Row, raceName, raceDate string, report *models.RaceReport) (*models.ResultRecord, error) {
	done := e.metrics.TimeInteraction("expand_row")
	err := browser.Do(ctx, "expand row", e.policy(), func() error {
		return row.Expand(ctx)
	})
	done()
	if err != nil {
		return nil, ErrRowUnavailable{Ordinal: row.Ordinal(), Err: err}
	}

	designation := e.detail(ctx, row, report, browser.DetailDesignation)

	record := &models.ResultRecord{
		RaceName:    raceName,
		RaceDate:    raceDate,
		Athlete:     e.cell(ctx, row, report, browser.FieldAthlete),
		Designation: designation,
	}

	switch models.ParseDesignation(designation) {
	case models.DNS, models.DQ:
		// Designation and athlete only.
	case models.DNF:
		e.readSplits(ctx, row, report, record)
	default:
		// Finisher shape, which also absorbs unrecognized designations.
		record.DivRank = e.detail(ctx, row, report, browser.DetailDivRank)
		record.GenderRank = e.detail(ctx, row, report, browser.DetailGenderRank)
		record.OverallRank = e.detail(ctx, row, report, browser.DetailOverallRank)
		record.Division = e.detail(ctx, row, report, browser.DetailDivision)
		e.readSplits(ctx, row, report, record)
	}

	// Closing the expanded panel is best effort; the next row's extraction
	// does not depend on it.
	if err := browser.Do(ctx, "collapse row", e.policy(), func() error {
		return row.Collapse(ctx)
	}); err != nil {
		slog.Debug("row collapse failed",
			slog.Int("row", row.Ordinal()),
			slog.Any("error", err),
		)
	}

	return record, nil
}

func (e *Extractor) readSplits(ctx context.Context, row browser.Row, report *models.RaceReport, record *models.ResultRecord) {
	record.SwimTime = e.cell(ctx, row, report, browser.FieldSwimTime)
	record.T1 = e.cell(ctx, row, report, browser.FieldT1)
	record.BikeTime = e.cell(ctx, row, report, browser.FieldBikeTime)
	record.T2 = e.cell(ctx, row, report, browser.FieldT2)
	record.RunTime = e.cell(ctx, row, report, browser.FieldRunTime)
	record.FinishTime = e.cell(ctx, row, report, browser.FieldFinishTime)
}

func (e *Extractor) cell(ctx context.Context, row browser.Row, report *models.RaceReport, field string) string {
	done := e.metrics.TimeInteraction("read_cell")
	text, err := browser.Attempt(ctx, "read cell "+field, e.policy(), func() (string, error) {
		return row.Cell(ctx, field)
	})
	done()
	if err != nil {
		e.fieldUnavailable(row, report, field, err)
		return models.NotAvailable
	}
	return parser.CleanText(text)
}

func (e *Extractor) detail(ctx context.Context, row browser.Row, report *models.RaceReport, label string) string {
	done := e.metrics.TimeInteraction("read_detail")
	text, err := browser.Attempt(ctx, "read detail "+label, e.policy(), func() (string, error) {
		return row.Detail(ctx, label)
	})
	done()
	if err != nil {
		e.fieldUnavailable(row, report, label, err)
		return models.NotAvailable
	}
	return parser.CleanText(text)
}

func (e *Extractor) fieldUnavailable(row browser.Row, report *models.RaceReport, field string, err error) {
	e.metrics.IncFailure(labelFieldUnavailable)
	report.AddFailure(labelFieldUnavailable)
	slog.Warn("field unavailable, recording sentinel",
		slog.Int("row", row.Ordinal()),
		slog.String("field", field),
		slog.Any("error", ErrFieldUnavailable{Field: field, Err: err}),
	)
}
