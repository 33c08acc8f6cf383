// Package models defines data structures for the extraction engine.
package models

// NotAvailable is the sentinel written in place of any field that could not
// be read after retries.
const NotAvailable = "N/A"

// Designation is an athlete's finishing status. It determines which fields
// of a ResultRecord are meaningful.
type Designation string

const (
	Finisher Designation = "FINISHER"
	DNF      Designation = "DNF"
	DNS      Designation = "DNS"
	DQ       Designation = "DQ"
)

// ParseDesignation maps a raw designation string to its closed variant.
// Anything unrecognized (including the sentinel) falls through to Finisher,
// which mirrors the richest extraction branch of the results widget.
func ParseDesignation(raw string) Designation {
	switch Designation(raw) {
	case DNF:
		return DNF
	case DNS:
		return DNS
	case DQ:
		return DQ
	default:
		return Finisher
	}
}

// RaceTarget is one row of the race catalog: a race name and the entry URL
// of its results page. Targets are immutable input.
type RaceTarget struct {
	Name     string `csv:"name" json:"name"`
	EntryURL string `csv:"url" json:"url"`
}

// DateOption is one selectable date facet of a race. The selector control
// re-renders between visits, so options are addressed by ordinal index and
// re-resolved on every visit rather than cached by handle.
type DateOption struct {
	Label        string
	OrdinalIndex int
}

// ResultRecord is one athlete result. Every record carries RaceName,
// RaceDate, Athlete and Designation; the remaining fields are populated
// according to the designation variant (DNS/DQ carry nothing further, DNF
// adds the split times, Finisher adds split times and ranks).
type ResultRecord struct {
	RaceName    string `csv:"race_name" json:"race_name"`
	RaceDate    string `csv:"race_date" json:"race_date"`
	Athlete     string `csv:"athlete" json:"athlete"`
	Designation string `csv:"designation" json:"designation"`

	DivRank     string `csv:"div_rank" json:"div_rank"`
	GenderRank  string `csv:"gender_rank" json:"gender_rank"`
	OverallRank string `csv:"overall_rank" json:"overall_rank"`
	Division    string `csv:"division" json:"division"`

	SwimTime   string `csv:"swim_time" json:"swim_time"`
	T1         string `csv:"t1" json:"t1"`
	BikeTime   string `csv:"bike_time" json:"bike_time"`
	T2         string `csv:"t2" json:"t2"`
	RunTime    string `csv:"run_time" json:"run_time"`
	FinishTime string `csv:"finish_time" json:"finish_time"`
}

// Shape returns the closed variant the record was extracted under.
func (r *ResultRecord) Shape() Designation {
	return ParseDesignation(r.Designation)
}

// Header lists the artifact columns in serialization order.
func Header() []string {
	return []string{
		"race_name", "race_date", "athlete", "designation",
		"div_rank", "gender_rank", "overall_rank", "division",
		"swim_time", "t1", "bike_time", "t2", "run_time", "finish_time",
	}
}

// Row serializes the record in Header order, substituting the sentinel for
// every empty field.
func (r *ResultRecord) Row() []string {
	fields := []string{
		r.RaceName, r.RaceDate, r.Athlete, r.Designation,
		r.DivRank, r.GenderRank, r.OverallRank, r.Division,
		r.SwimTime, r.T1, r.BikeTime, r.T2, r.RunTime, r.FinishTime,
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		if f == "" {
			f = NotAvailable
		}
		out[i] = f
	}
	return out
}

// RaceReport summarizes the processing of a single race.
type RaceReport struct {
	RaceName     string
	ArtifactPath string
	Dates        int
	Records      int
	Aborted      bool
	Failures     map[string]int
}

// AddFailure counts a contained failure of the given class against the race.
func (r *RaceReport) AddFailure(class string) {
	if r == nil {
		return
	}
	if r.Failures == nil {
		r.Failures = make(map[string]int)
	}
	r.Failures[class]++
}

// RunSummary aggregates per-race reports for operator follow-up.
type RunSummary struct {
	Reports []RaceReport
}

// Records returns the total number of records extracted across all races.
func (s *RunSummary) Records() int {
	total := 0
	for _, r := range s.Reports {
		total += r.Records
	}
	return total
}

// Failed lists the names of races that hit at least one failure class.
func (s *RunSummary) Failed() []string {
	var names []string
	for _, r := range s.Reports {
		if r.Aborted || len(r.Failures) > 0 {
			names = append(names, r.RaceName)
		}
	}
	return names
}
