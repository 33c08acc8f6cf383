package parser

import (
	"fmt"
	"strings"

	"github.com/jorgecela/ironman-races-analysis/models"
)

// ValidateRecord ensures a record's populated fields match the field set
// mandated by its designation. Every record must carry race name, race date,
// athlete and designation; DNS/DQ records carry nothing further, DNF adds
// the split times, and the Finisher (default) shape adds split times and
// ranks. Values holding the not-available sentinel count as populated: the
// field was part of the shape, it just never resolved.
func ValidateRecord(r *models.ResultRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.RaceName) == "" {
		return fmt.Errorf("record missing race name")
	}
	if strings.TrimSpace(r.RaceDate) == "" {
		return fmt.Errorf("record missing race date for %s", r.RaceName)
	}
	if strings.TrimSpace(r.Athlete) == "" {
		return fmt.Errorf("record missing athlete for %s", r.RaceName)
	}
	if strings.TrimSpace(r.Designation) == "" {
		return fmt.Errorf("record missing designation for %s", r.Athlete)
	}

	switch r.Shape() {
	case models.DNS, models.DQ:
		if anySet(splits(r)) || anySet(ranks(r)) {
			return fmt.Errorf("%s record for %s carries fields outside its shape", r.Designation, r.Athlete)
		}
	case models.DNF:
		if anySet(ranks(r)) {
			return fmt.Errorf("DNF record for %s carries rank fields", r.Athlete)
		}
		if !allSet(splits(r)) {
			return fmt.Errorf("DNF record for %s is missing split times", r.Athlete)
		}
	default:
		if !allSet(splits(r)) || !allSet(ranks(r)) {
			return fmt.Errorf("%s record for %s is missing finisher fields", r.Designation, r.Athlete)
		}
	}
	return nil
}

func splits(r *models.ResultRecord) []string {
	return []string{r.SwimTime, r.T1, r.BikeTime, r.T2, r.RunTime, r.FinishTime}
}

func ranks(r *models.ResultRecord) []string {
	return []string{r.DivRank, r.GenderRank, r.OverallRank, r.Division}
}

// allSet reports whether every field in the group was extracted, sentinel
// values included; an unset field means the shape was never fully read.
func allSet(fields []string) bool {
	for _, f := range fields {
		if f == "" {
			return false
		}
	}
	return true
}

func anySet(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return true
		}
	}
	return false
}

// CleanText collapses the whitespace runs the widget's rendered text tends
// to carry into single spaces and trims the result.
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// IsAvailable reports whether a field value holds real data rather than the
// sentinel or nothing at all.
func IsAvailable(value string) bool {
	return value != "" && value != models.NotAvailable
}
