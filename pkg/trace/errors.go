package trace

import "fmt"

// OrphanedFinishError reports a finish line for a test that was never
// seen starting.
type OrphanedFinishError struct {
	Name string
}

// Error implements error.
func (e *OrphanedFinishError) Error() string {
	return fmt.Sprintf("Saw end of %q without start indicator", e.Name)
}

// OrphanPolicy decides what happens to a finish without a start.
type OrphanPolicy int

const (
	// OrphanFail aborts the reconstruction with an *OrphanedFinishError.
	OrphanFail OrphanPolicy = iota
	// OrphanDrop discards the finish and keeps going.
	OrphanDrop
)

// String returns the config spelling of the policy.
func (p OrphanPolicy) String() string {
	if p == OrphanDrop {
		return "drop"
	}

	return "fail"
}
