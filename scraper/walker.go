package scraper

import (
	"context"
	"log/slog"

	"github.com/jorgecela/ironman-races-analysis/browser"
	"github.com/jorgecela/ironman-races-analysis/config"
	"github.com/jorgecela/ironman-races-analysis/models"
)

// Walker enumerates the rows of the currently loaded results table, page by
// page, and hands each extracted record to its emit callback. The produced
// sequence is finite: pagination stops when the next-page control is absent
// or disabled, and fails closed when a transition is never observed.
type Walker struct {
	cfg       *config.Config
	metrics   *Metrics
	extractor *Extractor
}

// NewWalker builds a page walker around an extractor.
func NewWalker(cfg *config.Config, metrics *Metrics, extractor *Extractor) *Walker {
	return &Walker{cfg: cfg, metrics: metrics, extractor: extractor}
}

func (w *Walker) policy() browser.RetryPolicy {
	return browser.RetryPolicy{MaxRetries: w.cfg.MaxRetries, Delay: w.cfg.RetryDelay}
}

// Walk extracts every row of every page of the table the session currently
// shows. Row failures are skipped with a warning; a failed page transition
// ends the walk. The returned error, if any, marks a table whose rows never
// resolved at all.
func (w *Walker) Walk(ctx context.Context, session browser.Session, raceName, raceDate string, report *models.RaceReport, emit func(*models.ResultRecord)) error {
	for page := 0; ; page++ {
		// Row handles are not stable across the page's own async settling;
		// resolve the full set fresh on every page.
		doneRows := w.metrics.TimeInteraction("resolve_rows")
		rows, err := browser.Attempt(ctx, "resolve rows", w.policy(), func() ([]browser.Row, error) {
			return session.Rows(ctx)
		})
		doneRows()
		if err != nil {
			return ErrPageTransition{Err: err}
		}

		slog.Debug("walking results page",
			slog.String("race", raceName),
			slog.String("date", raceDate),
			slog.Int("page", page),
			slog.Int("rows", len(rows)),
		)

		for _, row := range rows {
			record, err := w.extractor.Extract(ctx, row, raceName, raceDate, report)
			if err != nil {
				w.metrics.IncFailure(labelRowUnavailable)
				report.AddFailure(labelRowUnavailable)
				slog.Warn("skipping unavailable row",
					slog.String("race", raceName),
					slog.String("date", raceDate),
					slog.Int("page", page),
					slog.Int("row", row.Ordinal()),
					slog.Any("error", err),
				)
				continue
			}
			w.metrics.IncRecords()
			emit(record)
		}

		if !w.cfg.PaginationEnabled {
			return nil
		}

		doneNext := w.metrics.TimeInteraction("next_page")
		advanced, err := browser.Attempt(ctx, "next page", w.policy(), func() (bool, error) {
			return session.NextPage(ctx)
		})
		doneNext()
		if err != nil {
			// The click may have fired without the table ever going stale;
			// fail closed rather than loop forever.
			w.metrics.IncFailure(labelPageTransition)
			report.AddFailure(labelPageTransition)
			slog.Warn("page transition failed, treating as end of results",
				slog.String("race", raceName),
				slog.String("date", raceDate),
				slog.Int("page", page),
				slog.Any("error", ErrPageTransition{Err: err}),
			)
			return nil
		}
		if !advanced {
			return nil
		}
	}
}
