package scraper

import (
	"errors"
	"fmt"
)

// Failure class labels, smallest scope first. Lower classes are contained at
// the scope where they occur and never escalate upward automatically.
const (
	labelFieldUnavailable = "field_unavailable"
	labelRowUnavailable   = "row_unavailable"
	labelPageTransition   = "page_transition"
	labelSession          = "session"
	labelRace             = "race"
	labelPersist          = "persist"
)

// ErrFieldUnavailable indicates one field could not be read after retries;
// the field is recorded as the sentinel and extraction continues.
type ErrFieldUnavailable struct {
	Field string
	Err   error
}

func (e ErrFieldUnavailable) Error() string {
	return fmt.Errorf("field %s unavailable: %w", e.Field, e.Err).Error()
}

func (e ErrFieldUnavailable) Unwrap() error {
	return e.Err
}

// ErrRowUnavailable indicates the row handle could not be worked after
// retries; the row is skipped and extraction continues with the next row.
type ErrRowUnavailable struct {
	Ordinal int
	Err     error
}

func (e ErrRowUnavailable) Error() string {
	return fmt.Errorf("row %d unavailable: %w", e.Ordinal, e.Err).Error()
}

func (e ErrRowUnavailable) Unwrap() error {
	return e.Err
}

// ErrPageTransition indicates pagination could not advance; treated as end
// of data for the current date facet.
type ErrPageTransition struct {
	Err error
}

func (e ErrPageTransition) Error() string {
	return fmt.Errorf("page transition: %w", e.Err).Error()
}

func (e ErrPageTransition) Unwrap() error {
	return e.Err
}

// ErrSession indicates the automation context could not be (re)established
// after retries; the current date facet is abandoned.
type ErrSession struct {
	Err error
}

func (e ErrSession) Error() string {
	return fmt.Errorf("session: %w", e.Err).Error()
}

func (e ErrSession) Unwrap() error {
	return e.Err
}

// ErrRace indicates the race entry point itself is unreachable; the whole
// race is abandoned after persisting whatever was accumulated.
type ErrRace struct {
	Race string
	Err  error
}

func (e ErrRace) Error() string {
	return fmt.Errorf("race %s: %w", e.Race, e.Err).Error()
}

func (e ErrRace) Unwrap() error {
	return e.Err
}

func failureLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var race ErrRace
	if errors.As(err, &race) {
		return labelRace
	}
	var session ErrSession
	if errors.As(err, &session) {
		return labelSession
	}
	var page ErrPageTransition
	if errors.As(err, &page) {
		return labelPageTransition
	}
	var row ErrRowUnavailable
	if errors.As(err, &row) {
		return labelRowUnavailable
	}
	var field ErrFieldUnavailable
	if errors.As(err, &field) {
		return labelFieldUnavailable
	}
	return "other"
}
