package scraper

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jorgecela/ironman-races-analysis/browser"
	"github.com/jorgecela/ironman-races-analysis/config"
	"github.com/jorgecela/ironman-races-analysis/models"
	"github.com/jorgecela/ironman-races-analysis/pipeline"
)

// Scripted stand-ins for the live widget.

type fakeRow struct {
	ordinal   int
	details   map[string]string
	cells     map[string]string
	failCells map[string]bool
	expandErr error
	expands   int
	collapses int
}

func (r *fakeRow) Ordinal() int { return r.ordinal }

func (r *fakeRow) Expand(ctx context.Context) error {
	r.expands++
	return r.expandErr
}

func (r *fakeRow) Collapse(ctx context.Context) error {
	r.collapses++
	return nil
}

func (r *fakeRow) Cell(ctx context.Context, field string) (string, error) {
	if r.failCells[field] {
		return "", errors.New("cell never settled")
	}
	value, ok := r.cells[field]
	if !ok {
		return "", fmt.Errorf("no cell %s", field)
	}
	return value, nil
}

func (r *fakeRow) Detail(ctx context.Context, label string) (string, error) {
	value, ok := r.details[label]
	if !ok {
		return "", fmt.Errorf("no detail %q", label)
	}
	return value, nil
}

func finisherRow(ordinal int, athlete string) *fakeRow {
	return &fakeRow{
		ordinal: ordinal,
		details: map[string]string{
			browser.DetailDesignation: "FINISHER",
			browser.DetailDivRank:     "3",
			browser.DetailGenderRank:  "12",
			browser.DetailOverallRank: "47",
			browser.DetailDivision:    "F30-34",
		},
		cells: map[string]string{
			browser.FieldAthlete:    athlete,
			browser.FieldSwimTime:   "1:02:11",
			browser.FieldT1:         "0:04:29",
			browser.FieldBikeTime:   "5:31:02",
			browser.FieldT2:         "0:03:40",
			browser.FieldRunTime:    "3:48:16",
			browser.FieldFinishTime: "10:29:38",
		},
	}
}

func dnfRow(ordinal int, athlete string) *fakeRow {
	return &fakeRow{
		ordinal: ordinal,
		details: map[string]string{browser.DetailDesignation: "DNF"},
		cells: map[string]string{
			browser.FieldAthlete:    athlete,
			browser.FieldSwimTime:   "1:10:45",
			browser.FieldT1:         "0:05:12",
			browser.FieldBikeTime:   "6:02:19",
			browser.FieldT2:         "0:04:01",
			browser.FieldRunTime:    "N/A",
			browser.FieldFinishTime: "N/A",
		},
	}
}

func dnsRow(ordinal int, athlete string) *fakeRow {
	return &fakeRow{
		ordinal: ordinal,
		details: map[string]string{browser.DetailDesignation: "DNS"},
		cells:   map[string]string{browser.FieldAthlete: athlete},
	}
}

// fakeSession serves scripted pages per date facet. pages[i][j] holds the
// rows of date i, page j.
type fakeSession struct {
	labels    []string
	pages     [][][]*fakeRow
	curDate   int
	curPage   int
	stuckNext bool
	nextCalls int
	maximized int
	closed    bool
}

func (s *fakeSession) DateLabels(ctx context.Context) ([]string, error) {
	return s.labels, nil
}

func (s *fakeSession) SelectDate(ctx context.Context, index int) (string, error) {
	if index >= len(s.labels) {
		return "", fmt.Errorf("date option %d out of range", index)
	}
	s.curDate = index
	s.curPage = 0
	return s.labels[index], nil
}

func (s *fakeSession) MaximizePageSize(ctx context.Context) error {
	s.maximized++
	return nil
}

func (s *fakeSession) Rows(ctx context.Context) ([]browser.Row, error) {
	pages := s.pages[s.curDate]
	if s.curPage >= len(pages) {
		return nil, errors.New("no rows loaded")
	}
	rows := make([]browser.Row, len(pages[s.curPage]))
	for i, row := range pages[s.curPage] {
		rows[i] = row
	}
	return rows, nil
}

func (s *fakeSession) NextPage(ctx context.Context) (bool, error) {
	s.nextCalls++
	if s.stuckNext {
		return false, errors.New("row set never went stale after next page click")
	}
	if s.curPage+1 < len(s.pages[s.curDate]) {
		s.curPage++
		return true, nil
	}
	return false, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// fakeFactory builds a fresh scripted session per open; opens listed in
// failOn fail instead.
type fakeFactory struct {
	build  func() *fakeSession
	failOn map[int]bool
	opens  int
}

func (f *fakeFactory) Open(ctx context.Context, entryURL string) (browser.Session, error) {
	f.opens++
	if f.failOn[f.opens] {
		return nil, errors.New("entry page unreachable")
	}
	return f.build(), nil
}

// captureSink keeps flushed records in memory, one slice per race.
type captureSink struct {
	records map[string][]*models.ResultRecord
}

func newCaptureSink() *captureSink {
	return &captureSink{records: make(map[string][]*models.ResultRecord)}
}

func (s *captureSink) OpenRace(raceName string) (pipeline.OutputWriter, error) {
	return &captureWriter{sink: s, race: raceName}, nil
}

func (s *captureSink) ArtifactPath(raceName string) string {
	return "mem://" + pipeline.SafeName(raceName)
}

type captureWriter struct {
	sink *captureSink
	race string
}

func (w *captureWriter) Write(records []*models.ResultRecord) error {
	w.sink.records[w.race] = append(w.sink.records[w.race], records...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func (w *captureWriter) Validate() error { return nil }

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 1
	cfg.RetryDelay = 0
	cfg.PageSizeMode = config.PageSizeDefault
	cfg.RecycleMode = config.RecycleNever
	return cfg
}

func testRace() models.RaceTarget {
	return models.RaceTarget{
		Name:     "IRONMAN Hamburg",
		EntryURL: "https://www.ironman.com/im-hamburg-results",
	}
}

func TestDriverEndToEndOrdering(t *testing.T) {
	// 2 dates, each 2 pages of 2 rows (one finisher, one DNS) = 8 records in
	// date-major, page-major, row-major order.
	build := func() *fakeSession {
		return &fakeSession{
			labels: []string{"Aug 27, 2023", "Aug 28, 2022"},
			pages: [][][]*fakeRow{
				{
					{finisherRow(0, "d0p0r0"), dnsRow(1, "d0p0r1")},
					{finisherRow(0, "d0p1r0"), dnsRow(1, "d0p1r1")},
				},
				{
					{finisherRow(0, "d1p0r0"), dnsRow(1, "d1p0r1")},
					{finisherRow(0, "d1p1r0"), dnsRow(1, "d1p1r1")},
				},
			},
		}
	}

	cfg := testConfig()
	cfg.RecycleMode = config.RecyclePerDate
	factory := &fakeFactory{build: build}
	sink := newCaptureSink()

	driver := NewDriver(cfg, factory, sink)
	summary, err := driver.Run(context.Background(), []models.RaceTarget{testRace()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	records := sink.records["IRONMAN Hamburg"]
	if len(records) != 8 {
		t.Fatalf("records = %d, want 8", len(records))
	}

	expected := []string{
		"d0p0r0", "d0p0r1", "d0p1r0", "d0p1r1",
		"d1p0r0", "d1p0r1", "d1p1r0", "d1p1r1",
	}
	for i, athlete := range expected {
		if records[i].Athlete != athlete {
			t.Fatalf("record %d athlete = %q, want %q", i, records[i].Athlete, athlete)
		}
	}
	for i, record := range records {
		wantDate := "Aug 27, 2023"
		if i >= 4 {
			wantDate = "Aug 28, 2022"
		}
		if record.RaceDate != wantDate {
			t.Fatalf("record %d date = %q, want %q", i, record.RaceDate, wantDate)
		}
	}

	report := summary.Reports[0]
	if report.Aborted {
		t.Fatalf("run aborted: %+v", report)
	}
	if report.Dates != 2 {
		t.Fatalf("dates = %d, want 2", report.Dates)
	}
	if report.Records != 8 {
		t.Fatalf("report records = %d, want 8", report.Records)
	}
}

func TestDriverSessionOpensPerDate(t *testing.T) {
	build := func() *fakeSession {
		return &fakeSession{
			labels: []string{"2024", "2023", "2022"},
			pages: [][][]*fakeRow{
				{{dnsRow(0, "a")}},
				{{dnsRow(0, "b")}},
				{{dnsRow(0, "c")}},
			},
		}
	}

	cfg := testConfig()
	cfg.RecycleMode = config.RecyclePerDate
	factory := &fakeFactory{build: build}

	driver := NewDriver(cfg, factory, newCaptureSink())
	if _, err := driver.Run(context.Background(), []models.RaceTarget{testRace()}); err != nil {
		t.Fatalf("run: %v", err)
	}

	// One initial open for date enumeration plus one recycle open per date.
	if factory.opens != 4 {
		t.Fatalf("opens = %d, want 4", factory.opens)
	}
}

func TestDriverNoRecycleKeepsOneSession(t *testing.T) {
	build := func() *fakeSession {
		return &fakeSession{
			labels: []string{"2024", "2023", "2022"},
			pages: [][][]*fakeRow{
				{{dnsRow(0, "a")}},
				{{dnsRow(0, "b")}},
				{{dnsRow(0, "c")}},
			},
		}
	}

	cfg := testConfig()
	cfg.RecycleMode = config.RecycleNever
	factory := &fakeFactory{build: build}
	sink := newCaptureSink()

	driver := NewDriver(cfg, factory, sink)
	if _, err := driver.Run(context.Background(), []models.RaceTarget{testRace()}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if factory.opens != 1 {
		t.Fatalf("opens = %d, want 1", factory.opens)
	}
	if got := len(sink.records["IRONMAN Hamburg"]); got != 3 {
		t.Fatalf("records = %d, want 3", got)
	}
}

func TestDriverRecycleFailureAbandonsFacetOnly(t *testing.T) {
	build := func() *fakeSession {
		return &fakeSession{
			labels: []string{"2024", "2023"},
			pages: [][][]*fakeRow{
				{{dnsRow(0, "first-date")}},
				{{dnsRow(0, "second-date")}},
			},
		}
	}

	cfg := testConfig()
	cfg.RecycleMode = config.RecyclePerDate
	cfg.MaxRetries = 0
	// Open 1: initial. Open 2: recycle for date 0 fails. Open 3: date 1.
	factory := &fakeFactory{build: build, failOn: map[int]bool{2: true}}
	sink := newCaptureSink()

	driver := NewDriver(cfg, factory, sink)
	summary, err := driver.Run(context.Background(), []models.RaceTarget{testRace()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	records := sink.records["IRONMAN Hamburg"]
	if len(records) != 1 || records[0].Athlete != "second-date" {
		t.Fatalf("records = %+v, want only the second date's row", records)
	}

	report := summary.Reports[0]
	if report.Aborted {
		t.Fatalf("a lost facet must not abort the race")
	}
	if report.Failures[labelSession] == 0 {
		t.Fatalf("failures = %v, want a session class entry", report.Failures)
	}
}

func TestDriverUnreachableRaceStillWritesArtifact(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	factory := &fakeFactory{
		build:  func() *fakeSession { return &fakeSession{} },
		failOn: map[int]bool{1: true},
	}

	dir := t.TempDir()
	sink := pipeline.NewFileSink(dir, "csv")

	driver := NewDriver(cfg, factory, sink)
	summary, err := driver.Run(context.Background(), []models.RaceTarget{testRace()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	report := summary.Reports[0]
	if !report.Aborted {
		t.Fatalf("expected aborted report")
	}
	if report.Failures[labelRace] == 0 {
		t.Fatalf("failures = %v, want a race class entry", report.Failures)
	}

	path := filepath.Join(dir, "IRONMAN_Hamburg.csv")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("artifact missing for aborted race: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("artifact rows = %d, want header only", len(rows))
	}
}

func TestDriverMaximizesPageSizeOncePerSession(t *testing.T) {
	var sessions []*fakeSession
	build := func() *fakeSession {
		s := &fakeSession{
			labels: []string{"2024", "2023"},
			pages: [][][]*fakeRow{
				{{dnsRow(0, "a")}},
				{{dnsRow(0, "b")}},
			},
		}
		sessions = append(sessions, s)
		return s
	}

	cfg := testConfig()
	cfg.PageSizeMode = config.PageSizeMaximum
	cfg.RecycleMode = config.RecycleNever
	factory := &fakeFactory{build: build}

	driver := NewDriver(cfg, factory, newCaptureSink())
	if _, err := driver.Run(context.Background(), []models.RaceTarget{testRace()}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	if sessions[0].maximized != 1 {
		t.Fatalf("maximized = %d, want 1 (once per session across both dates)", sessions[0].maximized)
	}
}

func TestDriverStopsBetweenRaces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	driver := NewDriver(testConfig(), &fakeFactory{build: func() *fakeSession { return &fakeSession{} }}, newCaptureSink())
	summary, err := driver.Run(ctx, []models.RaceTarget{testRace(), testRace()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(summary.Reports) != 0 {
		t.Fatalf("reports = %d, want 0", len(summary.Reports))
	}
}

func TestSessionManagerRetriesOpenAsUnit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	factory := &fakeFactory{
		build:  func() *fakeSession { return &fakeSession{} },
		failOn: map[int]bool{1: true, 2: true},
	}

	manager := NewSessionManager(factory, cfg, NewMetrics())
	session, err := manager.Open(context.Background(), testRace())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if session == nil {
		t.Fatalf("expected a session after retries")
	}
	if factory.opens != 3 {
		t.Fatalf("opens = %d, want 3", factory.opens)
	}
}

func TestSessionManagerOpenExhaustionIsSessionError(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	factory := &fakeFactory{
		build:  func() *fakeSession { return &fakeSession{} },
		failOn: map[int]bool{1: true, 2: true},
	}

	manager := NewSessionManager(factory, cfg, NewMetrics())
	_, err := manager.Open(context.Background(), testRace())

	var sessionErr ErrSession
	if !errors.As(err, &sessionErr) {
		t.Fatalf("err = %v, want ErrSession", err)
	}
	if failureLabel(err) != labelSession {
		t.Fatalf("label = %q, want %q", failureLabel(err), labelSession)
	}
}

func TestSessionManagerRecycleClosesOldSession(t *testing.T) {
	cfg := testConfig()
	factory := &fakeFactory{build: func() *fakeSession { return &fakeSession{} }}

	manager := NewSessionManager(factory, cfg, NewMetrics())
	first, err := manager.Open(context.Background(), testRace())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	second, err := manager.Recycle(context.Background(), first, testRace())
	if err != nil {
		t.Fatalf("recycle: %v", err)
	}
	if second == first {
		t.Fatalf("recycle must build a fresh session")
	}
	if !first.(*fakeSession).closed {
		t.Fatalf("recycle must close the old session")
	}
}

func TestFailureLabels(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{err: ErrFieldUnavailable{Field: "swim", Err: errors.New("x")}, expected: labelFieldUnavailable},
		{err: ErrRowUnavailable{Ordinal: 3, Err: errors.New("x")}, expected: labelRowUnavailable},
		{err: ErrPageTransition{Err: errors.New("x")}, expected: labelPageTransition},
		{err: ErrSession{Err: errors.New("x")}, expected: labelSession},
		{err: ErrRace{Race: "r", Err: errors.New("x")}, expected: labelRace},
		{err: errors.New("x"), expected: "other"},
		{err: nil, expected: "unknown"},
	}
	for _, tt := range tests {
		if got := failureLabel(tt.err); got != tt.expected {
			t.Fatalf("failureLabel(%v) = %q, want %q", tt.err, got, tt.expected)
		}
	}
}
