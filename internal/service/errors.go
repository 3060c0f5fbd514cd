package service

import (
	"errors"
	"fmt"

	"github.com/timmy/lenscat/internal/domain"
)

var (
	// ErrJobNotFound is returned when a job id is unknown.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobFinished is returned when an operation needs a non-terminal job.
	ErrJobFinished = errors.New("job already finished")

	// ErrInvalidParams is returned when trigger parameters fail validation.
	ErrInvalidParams = domain.ErrInvalidJobParams

	// ErrSourceUnavailable is returned when the catalog source cannot be reached.
	ErrSourceUnavailable = errors.New("catalog source unavailable")

	// ErrNoPricingTiers is returned when no active pricing tier exists.
	ErrNoPricingTiers = errors.New("no active pricing tiers")

	// ErrNoProducts is returned when a recalculation selects no products.
	ErrNoProducts = errors.New("no products to recalculate")

	// ErrLeaseLost is returned when a worker writes to a job it no longer owns.
	ErrLeaseLost = errors.New("job lease lost")
)

// StageError tags a fatal run error with the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// PanicError wraps a value recovered from an executor panic.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// errorDetails builds the error_details payload of a failed job.
func errorDetails(err error) domain.ErrorDetails {
	d := domain.ErrorDetails{Error: err.Error(), Stage: "run"}
	var se *StageError
	if errors.As(err, &se) {
		d.Stage = se.Stage
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		d.Panic = true
	}
	return d
}

// tolerated reports whether errorCount stays under the "mostly succeeded"
// threshold: no errors, or fewer errors than half of the processed records.
func tolerated(errorCount, processed int) bool {
	return errorCount == 0 || errorCount*2 < processed
}
