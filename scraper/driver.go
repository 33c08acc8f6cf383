// Package scraper implements the extraction engine: a race driver iterating
// the catalog, a date-facet navigator, a page walker and a record extractor,
// all driving one owned automation session at a time.
package scraper

import (
	"context"
	"log/slog"

	"github.com/jorgecela/ironman-races-analysis/browser"
	"github.com/jorgecela/ironman-races-analysis/config"
	"github.com/jorgecela/ironman-races-analysis/models"
	"github.com/jorgecela/ironman-races-analysis/pipeline"
)

// Driver orchestrates extraction across the race catalog: one race at a
// time, one date facet at a time, one page at a time, strictly sequential.
// Each race's records are accumulated in a result set owned here and
// persisted exactly once, on clean completion and on abort alike.
type Driver struct {
	cfg      *config.Config
	sink     pipeline.Sink
	sessions *SessionManager
	walker   *Walker
	Metrics  *Metrics
}

// NewDriver wires the engine components over a session factory and an
// artifact sink.
func NewDriver(cfg *config.Config, factory browser.Factory, sink pipeline.Sink) *Driver {
	metrics := NewMetrics()
	extractor := NewExtractor(cfg, metrics)
	return &Driver{
		cfg:      cfg,
		sink:     sink,
		sessions: NewSessionManager(factory, cfg, metrics),
		walker:   NewWalker(cfg, metrics, extractor),
		Metrics:  metrics,
	}
}

func (d *Driver) policy() browser.RetryPolicy {
	return browser.RetryPolicy{MaxRetries: d.cfg.MaxRetries, Delay: d.cfg.RetryDelay}
}

// Run processes every race in catalog order. Contained failures never
// escalate; the only errors surfaced here are context cancellation between
// races.
func (d *Driver) Run(ctx context.Context, races []models.RaceTarget) (*models.RunSummary, error) {
	summary := &models.RunSummary{}
	for _, race := range races {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Reports = append(summary.Reports, d.processRace(ctx, race))
	}
	return summary, nil
}

func (d *Driver) processRace(ctx context.Context, race models.RaceTarget) models.RaceReport {
	slog.Info("processing race",
		slog.String("race", race.Name),
		slog.String("url", race.EntryURL),
	)

	report := models.RaceReport{RaceName: race.Name, Failures: make(map[string]int)}
	set := pipeline.NewResultSet()

	session, err := d.sessions.Open(ctx, race)
	if err != nil {
		// The entry point itself is unreachable; abandon the race but still
		// persist so storage stays 1:1 with the catalog.
		report.Aborted = true
		d.fail(&report, ErrRace{Race: race.Name, Err: err})
	} else {
		session = d.forEachDate(ctx, race, session, set, &report)
		d.sessions.Close(session)
	}

	d.persist(race, set, &report)

	outcome := "done"
	if report.Aborted {
		outcome = "aborted"
	}
	d.Metrics.IncRace(outcome)

	slog.Info("race finished",
		slog.String("race", race.Name),
		slog.Int("dates", report.Dates),
		slog.Int("records", report.Records),
		slog.Bool("aborted", report.Aborted),
	)
	return report
}

// forEachDate is the date-facet navigator. Option labels are enumerated once
// by position; each visit then re-resolves the option at its ordinal index,
// because the selector DOM is rebuilt between visits. Returns the session
// currently held (possibly recycled, possibly nil after a failed recycle).
func (d *Driver) forEachDate(ctx context.Context, race models.RaceTarget, session browser.Session, set *pipeline.ResultSet, report *models.RaceReport) browser.Session {
	doneDates := d.Metrics.TimeInteraction("enumerate_dates")
	labels, err := browser.Attempt(ctx, "enumerate dates", d.policy(), func() ([]string, error) {
		return session.DateLabels(ctx)
	})
	doneDates()
	if err != nil {
		report.Aborted = true
		d.fail(report, ErrRace{Race: race.Name, Err: err})
		return session
	}

	report.Dates = len(labels)
	slog.Info("found race dates",
		slog.String("race", race.Name),
		slog.Int("dates", len(labels)),
	)

	sized := false
	for index := range labels {
		if ctx.Err() != nil {
			return session
		}

		// Long result tables build up memory pressure in the automation
		// context; the per-date schedule swaps it out before every facet.
		if d.cfg.RecycleMode == config.RecyclePerDate {
			fresh, err := d.sessions.Recycle(ctx, session, race)
			session = fresh
			sized = false
			if err != nil {
				d.fail(report, err)
				slog.Warn("abandoning date facet, session could not be recycled",
					slog.String("race", race.Name),
					slog.Int("date_index", index),
				)
				continue
			}
		}
		if session == nil {
			// A non-recycling schedule cannot recover a lost session.
			report.Aborted = true
			return nil
		}

		doneSelect := d.Metrics.TimeInteraction("select_date")
		label, err := browser.Attempt(ctx, "select date", d.policy(), func() (string, error) {
			return session.SelectDate(ctx, index)
		})
		doneSelect()
		if err != nil {
			d.fail(report, ErrSession{Err: err})
			slog.Warn("abandoning date facet, date could not be selected",
				slog.String("race", race.Name),
				slog.Int("date_index", index),
			)
			continue
		}

		if d.cfg.PageSizeMode == config.PageSizeMaximum && !sized {
			// Once per session; fewer page transitions per date.
			if err := browser.Do(ctx, "maximize page size", d.policy(), func() error {
				return session.MaximizePageSize(ctx)
			}); err != nil {
				slog.Warn("page size could not be maximized",
					slog.String("race", race.Name),
					slog.Any("error", err),
				)
			} else {
				sized = true
			}
		}

		slog.Info("extracting date facet",
			slog.String("race", race.Name),
			slog.String("date", label),
		)

		if err := d.walker.Walk(ctx, session, race.Name, label, report, set.Append); err != nil {
			d.fail(report, err)
		}
	}

	return session
}

func (d *Driver) persist(race models.RaceTarget, set *pipeline.ResultSet, report *models.RaceReport) {
	if violations := set.ValidationErrors(); len(violations) > 0 {
		slog.Warn("records with off-shape fields kept",
			slog.String("race", race.Name),
			slog.Any("counts", violations),
		)
	}

	writer, err := d.sink.OpenRace(race.Name)
	if err != nil {
		report.AddFailure(labelPersist)
		d.Metrics.IncFailure(labelPersist)
		slog.Error("artifact could not be opened",
			slog.String("race", race.Name),
			slog.Any("error", err),
		)
		return
	}

	count, err := set.Flush(writer)
	if err != nil {
		report.AddFailure(labelPersist)
		d.Metrics.IncFailure(labelPersist)
		slog.Error("artifact could not be written",
			slog.String("race", race.Name),
			slog.Any("error", err),
		)
		return
	}

	report.Records = count
	report.ArtifactPath = d.sink.ArtifactPath(race.Name)
	slog.Info("artifact written",
		slog.String("race", race.Name),
		slog.String("path", report.ArtifactPath),
		slog.Int("records", count),
	)
}

func (d *Driver) fail(report *models.RaceReport, err error) {
	class := failureLabel(err)
	report.AddFailure(class)
	d.Metrics.IncFailure(class)
	slog.Error("contained failure",
		slog.String("race", report.RaceName),
		slog.String("class", class),
		slog.Any("error", err),
	)
}
