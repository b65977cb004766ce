// Package mutation applies slot changes optimistically: the local slot store
// is updated first, the remote store is called, and the local change is
// confirmed, rolled back or resynchronised depending on the answer.
//
// Every operation returns a Result and never panics on remote failure. A
// quarter hour touched by an in-flight mutation cannot be mutated again until
// that mutation resolves.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tiliavir/quarter-tracker/internal/metrics"
	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/slots"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

// Engine is safe for concurrent use. Mutations on distinct quarter hours may
// be in flight at the same time.
type Engine struct {
	store    *slots.Store
	remote   storage.SlotStore
	notifier Notifier
	logger   *slog.Logger
	newID    func() string

	mu      sync.Mutex
	pending map[model.SlotKey]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets where user-facing messages go.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithIDGenerator overrides how temporary ids are generated.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// New returns an Engine writing to store and remote.
func New(store *slots.Store, remote storage.SlotStore, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		remote:   remote,
		notifier: nopNotifier{},
		newID:    func() string { return "tmp-" + timecalc.GenerateID(time.Now()) },
		pending:  map[model.SlotKey]string{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With(slog.String("component", "mutation"))
	return e
}

// Pending reports whether a mutation touching the quarter hour is in flight.
func (e *Engine) Pending(date string, tick float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pending[model.SlotKey{Date: date, TimeSlot: tick}]
	return ok
}

// txn is one optimistic transition. It records the before-images of every
// local record it changed and the temporary ids it added.
type txn struct {
	e      *Engine
	op     string
	date   string
	keys   []model.SlotKey
	before []model.TimeSlot
	seen   map[model.SlotID]bool
	added  []model.SlotID
}

// lock claims quarter hours for this transition. Called under e.mu.
func (tx *txn) lock(keys ...model.SlotKey) error {
	for _, k := range keys {
		if other, busy := tx.e.pending[k]; busy {
			return &ValidationError{
				Op:     tx.op,
				Reason: fmt.Sprintf("%s %s is busy with a pending %s", k.Date, timecalc.FormatTick(k.TimeSlot), other),
			}
		}
	}
	for _, k := range keys {
		tx.e.pending[k] = tx.op
		tx.keys = append(tx.keys, k)
	}
	return nil
}

func (tx *txn) remember(prev model.TimeSlot) {
	if tx.seen[prev.ID] {
		return
	}
	tx.seen[prev.ID] = true
	tx.before = append(tx.before, prev.Clone())
}

// insert adds slot locally under a new temporary id.
func (tx *txn) insert(slot model.TimeSlot) model.TimeSlot {
	slot.ID = model.LocalID(tx.e.newID())
	tx.added = append(tx.added, slot.ID)
	tx.e.store.UpsertLocal(slot)
	return slot
}

// put replaces prev with next locally.
func (tx *txn) put(prev, next model.TimeSlot) {
	tx.remember(prev)
	tx.e.store.UpsertLocal(next)
}

// remove drops prev locally.
func (tx *txn) remove(prev model.TimeSlot) {
	tx.remember(prev)
	tx.e.store.RemoveLocal(prev.ID)
}

// stage runs prepare under the engine lock. prepare validates against the
// store, locks the quarter hours it needs and applies the optimistic change.
// A nil txn with a nil error means there was nothing to do.
func (e *Engine) stage(op, date string, prepare func(tx *txn) error) (*txn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := &txn{e: e, op: op, date: date, seen: map[model.SlotID]bool{}}
	if err := prepare(tx); err != nil {
		e.restore(tx)
		e.unlock(tx)
		return nil, err
	}
	if len(tx.keys) == 0 {
		return nil, nil
	}
	return tx, nil
}

func (e *Engine) unlock(tx *txn) {
	for _, k := range tx.keys {
		delete(e.pending, k)
	}
	tx.keys = nil
}

// release frees the quarter hours of a finished transition.
func (e *Engine) release(tx *txn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unlock(tx)
}

// restore puts back every before-image and drops every temporary record.
func (e *Engine) restore(tx *txn) {
	e.store.RemoveLocal(tx.added...)
	for _, prev := range tx.before {
		e.store.UpsertLocal(prev)
	}
}

func (e *Engine) commit(tx *txn, confirmed []model.TimeSlot) Result {
	return e.record(tx.op, Result{Outcome: Committed, Slots: confirmed})
}

// fail handles a remote error after staging. Conflicts discard the optimistic
// records and reload the date; everything else rolls back.
func (e *Engine) fail(ctx context.Context, tx *txn, err error) Result {
	if errors.Is(err, errIncompleteReply) {
		return e.resync(ctx, tx, err, nil)
	}
	e.restore(tx)
	if isConflict(err) {
		if rerr := e.store.ReloadDate(context.WithoutCancel(ctx), tx.date); rerr != nil {
			e.logger.Error("reload after conflict failed",
				slog.String("op", tx.op),
				slog.String("date", tx.date),
				slog.String("error", rerr.Error()))
		}
		return e.record(tx.op, Result{
			Outcome: Resynced,
			Err:     &ConflictError{Op: tx.op, Date: tx.date, Err: err},
		})
	}
	return e.record(tx.op, Result{
		Outcome: RolledBack,
		Err:     &MutationError{Op: tx.op, Err: err},
	})
}

// resync is used when the remote state after a transition is unknown, either
// because an earlier remote call could not be undone or because a reply did
// not match the request: the remote store is re-read for the date.
func (e *Engine) resync(ctx context.Context, tx *txn, err, cerr error) Result {
	if cerr != nil {
		err = errors.Join(err, fmt.Errorf("undo: %w", cerr))
	}
	e.restore(tx)
	if rerr := e.store.ReloadDate(context.WithoutCancel(ctx), tx.date); rerr != nil {
		e.logger.Error("reload after failed compensation failed",
			slog.String("op", tx.op),
			slog.String("date", tx.date),
			slog.String("error", rerr.Error()))
	}
	return e.record(tx.op, Result{
		Outcome: Resynced,
		Err:     &MutationError{Op: tx.op, Err: err},
	})
}

// errIncompleteReply marks an insert whose reply does not carry one record
// per inserted slot.
var errIncompleteReply = errors.New("incomplete insert reply")

// insertRemote inserts payload and checks that every slot came back.
func (e *Engine) insertRemote(ctx context.Context, payload []model.TimeSlot) ([]model.TimeSlot, error) {
	got, err := e.remote.InsertSlots(ctx, payload)
	if err != nil {
		return nil, err
	}
	if len(got) != len(payload) {
		return nil, fmt.Errorf("%w: sent %d slots, got %d back", errIncompleteReply, len(payload), len(got))
	}
	return got, nil
}

func (e *Engine) reject(op string, err error) Result {
	return e.record(op, Result{Outcome: Rejected, Err: err})
}

func (e *Engine) unchanged(op string) Result {
	return e.record(op, Result{Outcome: Unchanged})
}

// staged turns the outcome of stage into a Result when no remote call is due.
func (e *Engine) staged(op string, tx *txn, err error) (Result, bool) {
	if err != nil {
		return e.reject(op, err), true
	}
	if tx == nil {
		return e.unchanged(op), true
	}
	return Result{}, false
}

func (e *Engine) record(op string, res Result) Result {
	metrics.MutationsTotal.WithLabelValues(op, res.Outcome.String()).Inc()

	attrs := []any{slog.String("op", op), slog.String("outcome", res.Outcome.String())}
	switch res.Outcome {
	case Committed, Unchanged:
		e.logger.Debug("mutation finished", append(attrs, slog.Int("slots", len(res.Slots)))...)
	case Rejected:
		e.logger.Info("mutation rejected", append(attrs, slog.String("reason", res.Err.Error()))...)
		e.notifier.Info(res.Err.Error())
	case Resynced:
		e.logger.Warn("mutation resynced", append(attrs, slog.String("error", res.Err.Error()))...)
		var conflict *ConflictError
		if errors.As(res.Err, &conflict) {
			e.notifier.Error(fmt.Sprintf("Conflict: %s was changed elsewhere and has been reloaded", conflict.Date))
		} else {
			e.notifier.Error(res.Err.Error())
		}
	default:
		e.logger.Error("mutation rolled back", append(attrs, slog.String("error", res.Err.Error()))...)
		e.notifier.Error(res.Err.Error())
	}
	return res
}

func validDate(op, date string) error {
	if !timecalc.ValidDate(date) {
		return &ValidationError{Op: op, Reason: fmt.Sprintf("invalid date %q", date)}
	}
	return nil
}

func validRange(op, date string, start, end float64) error {
	if err := validDate(op, date); err != nil {
		return err
	}
	if !timecalc.ValidBoundary(start) || !timecalc.ValidBoundary(end) || start >= end {
		return &ValidationError{
			Op:     op,
			Reason: fmt.Sprintf("invalid range %v-%v: bounds must be quarter hours within the day and start before end", start, end),
		}
	}
	return nil
}

func busy(op string, slot model.TimeSlot) error {
	return &ValidationError{
		Op:     op,
		Reason: fmt.Sprintf("%s %s is not saved yet", slot.Date, timecalc.FormatTick(slot.TimeSlot)),
	}
}

func ids(slots []model.TimeSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.ID.String()
	}
	return out
}
