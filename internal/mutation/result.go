package mutation

import (
	"errors"
	"fmt"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
)

// Outcome is the terminal state of one mutation.
type Outcome int

const (
	// Unchanged means there was nothing to do; no remote call was made.
	Unchanged Outcome = iota
	// Committed means the remote store accepted the change.
	Committed
	// RolledBack means the remote call failed and the local state was
	// restored to what it was before the mutation.
	RolledBack
	// Resynced means the local copy of the date was re-read from the remote
	// store, after a conflict or a failed compensation.
	Resynced
	// Rejected means a local precondition failed; nothing was changed.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	case Resynced:
		return "resynced"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is returned by every engine operation.
type Result struct {
	Outcome Outcome
	// Slots holds the records as confirmed by the remote store on commit.
	Slots []model.TimeSlot
	Err   error
}

// OK reports whether the local state now reflects the requested change.
func (r Result) OK() bool {
	return r.Outcome == Committed || r.Outcome == Unchanged
}

// ValidationError reports a violated local precondition. The remote store
// was never called.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// MutationError reports a remote failure after the optimistic change was
// applied.
type MutationError struct {
	Op  string
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// ConflictError reports that the remote store disagreed with the local copy,
// typically a duplicate quarter hour. The date was reloaded.
type ConflictError struct {
	Op   string
	Date string
	Err  error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflicted on %s: %v", e.Op, e.Date, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

func isConflict(err error) bool {
	return errors.Is(err, storage.ErrDuplicate) || errors.Is(err, storage.ErrNotFound)
}

// ClaimPolicy decides what happens to quarter hours already owned by another
// project when a range is claimed.
type ClaimPolicy int

const (
	// SkipOccupied fills only free quarter hours.
	SkipOccupied ClaimPolicy = iota
	// Replace takes over quarter hours of other projects, dropping their notes.
	Replace
	// Forbid rejects the claim if any quarter hour belongs to another project.
	Forbid
)

func (p ClaimPolicy) String() string {
	switch p {
	case SkipOccupied:
		return "skip"
	case Replace:
		return "replace"
	case Forbid:
		return "forbid"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Notifier surfaces non-fatal messages to the user.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Info(string)  {}
func (nopNotifier) Error(string) {}

// Confirmer is asked before a slot carrying a note is handed to another
// project.
type Confirmer interface {
	ConfirmNoteLoss(slot model.TimeSlot) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(slot model.TimeSlot) bool

// ConfirmNoteLoss implements Confirmer.
func (f ConfirmFunc) ConfirmNoteLoss(slot model.TimeSlot) bool { return f(slot) }
