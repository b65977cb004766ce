// Package slots holds the in-memory copy of a user's quarter-hour slots for
// the loaded date range.
//
// The Store is a dumb container: it keeps records ordered by date and
// time_slot and never resolves (date, time_slot) collisions itself. Only the
// mutation engine writes to it; everything else reads copies.
package slots

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Tiliavir/quarter-tracker/internal/metrics"
	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

// LoadError reports a failed fetch from the remote store. The Store keeps its
// previous content when this is returned.
type LoadError struct {
	From string
	To   string
	Err  error
}

func (e *LoadError) Error() string {
	if e.From == e.To && e.From != "" {
		return fmt.Sprintf("load slots for %s: %v", e.From, e.Err)
	}
	return fmt.Sprintf("load slots for %s..%s: %v", e.From, e.To, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Store is safe for concurrent use.
type Store struct {
	remote storage.SlotStore
	logger *slog.Logger

	mu    sync.RWMutex
	slots []model.TimeSlot
}

// New returns an empty Store backed by remote.
func New(remote storage.SlotStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		remote: remote,
		logger: logger.With(slog.String("component", "slots")),
	}
}

// Load replaces the content with the remote slots of [from, to].
func (s *Store) Load(ctx context.Context, from, to string) error {
	if to == "" {
		to = from
	}
	if !timecalc.ValidDate(from) || !timecalc.ValidDate(to) || to < from {
		return s.loadFailed(from, to, fmt.Errorf("invalid date range %q..%q", from, to))
	}

	q := storage.SlotQuery{From: from, To: to}
	if from == to {
		q = storage.SlotQuery{Date: from}
	}
	return s.fetch(ctx, q)
}

// LoadRange is Load with open bounds: an empty from or to leaves that side of
// the range unbounded, so LoadRange("", "") loads every slot.
func (s *Store) LoadRange(ctx context.Context, from, to string) error {
	for _, d := range []string{from, to} {
		if d != "" && !timecalc.ValidDate(d) {
			return s.loadFailed(from, to, fmt.Errorf("invalid date %q", d))
		}
	}
	if from != "" && to != "" && to < from {
		return s.loadFailed(from, to, fmt.Errorf("invalid date range %q..%q", from, to))
	}
	return s.fetch(ctx, storage.SlotQuery{From: from, To: to})
}

func (s *Store) fetch(ctx context.Context, q storage.SlotQuery) error {
	from, to := q.From, q.To
	if q.Date != "" {
		from, to = q.Date, q.Date
	}
	fetched, err := s.remote.SelectSlots(ctx, q)
	if err != nil {
		return s.loadFailed(from, to, err)
	}
	sortSlots(fetched)

	s.mu.Lock()
	s.slots = fetched
	s.mu.Unlock()

	metrics.SlotLoadsTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("slots loaded",
		slog.String("from", from),
		slog.String("to", to),
		slog.Int("count", len(fetched)))
	return nil
}

// ReloadDate replaces one date's slots with the remote copy.
func (s *Store) ReloadDate(ctx context.Context, date string) error {
	fetched, err := s.remote.SelectSlots(ctx, storage.SlotQuery{Date: date})
	if err != nil {
		return s.loadFailed(date, date, err)
	}

	s.mu.Lock()
	kept := make([]model.TimeSlot, 0, len(s.slots)+len(fetched))
	for _, slot := range s.slots {
		if slot.Date != date {
			kept = append(kept, slot)
		}
	}
	kept = append(kept, fetched...)
	sortSlots(kept)
	s.slots = kept
	s.mu.Unlock()

	metrics.SlotLoadsTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("date reloaded", slog.String("date", date), slog.Int("count", len(fetched)))
	return nil
}

func (s *Store) loadFailed(from, to string, err error) error {
	metrics.SlotLoadsTotal.WithLabelValues("error").Inc()
	s.logger.Warn("slot load failed",
		slog.String("from", from),
		slog.String("to", to),
		slog.String("error", err.Error()))
	return &LoadError{From: from, To: to, Err: err}
}

// UpsertLocal inserts slot or replaces the record with the same id.
func (s *Store) UpsertLocal(slot model.TimeSlot) {
	slot = slot.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(slot.ID); i >= 0 {
		s.slots = append(s.slots[:i], s.slots[i+1:]...)
	}
	s.insertSorted(slot)
}

// RemoveLocal drops the records with the given ids. Unknown ids are ignored.
func (s *Store) RemoveLocal(ids ...model.SlotID) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[model.SlotID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.slots[:0]
	for _, slot := range s.slots {
		if !drop[slot.ID] {
			kept = append(kept, slot)
		}
	}
	s.slots = kept
}

// Confirm replaces the record carrying tempID with the persisted one. If the
// temporary record is gone the persisted one is inserted.
func (s *Store) Confirm(tempID model.SlotID, persisted model.TimeSlot) {
	persisted = persisted.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(tempID); i >= 0 && s.slots[i].Key() == persisted.Key() {
		s.slots[i] = persisted
		return
	}
	for _, id := range []model.SlotID{tempID, persisted.ID} {
		if i := s.indexOf(id); i >= 0 {
			s.slots = append(s.slots[:i], s.slots[i+1:]...)
		}
	}
	s.insertSorted(persisted)
}

// FindAt returns the slot occupying the quarter hour.
func (s *Store) FindAt(date string, tick float64) (model.TimeSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := model.SlotKey{Date: date, TimeSlot: tick}
	i := sort.Search(len(s.slots), func(i int) bool {
		return !model.Less(s.slots[i], model.TimeSlot{Date: date, TimeSlot: tick})
	})
	if i < len(s.slots) && s.slots[i].Key() == key {
		return s.slots[i].Clone(), true
	}
	return model.TimeSlot{}, false
}

// FindByID returns the slot with the given id.
func (s *Store) FindByID(id model.SlotID) (model.TimeSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.slots[i].Clone(), true
	}
	return model.TimeSlot{}, false
}

// ForDate returns the slots of one date, ordered by time_slot.
func (s *Store) ForDate(date string) []model.TimeSlot {
	return s.Range(date, date)
}

// Range returns the slots within [from, to], ordered.
func (s *Store) Range(from, to string) []model.TimeSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.TimeSlot{}
	for _, slot := range s.slots {
		if slot.Date >= from && slot.Date <= to {
			out = append(out, slot.Clone())
		}
	}
	return out
}

// All returns every slot held, ordered.
func (s *Store) All() []model.TimeSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TimeSlot, len(s.slots))
	for i, slot := range s.slots {
		out[i] = slot.Clone()
	}
	return out
}

// Len returns the number of slots held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

func (s *Store) indexOf(id model.SlotID) int {
	for i, slot := range s.slots {
		if slot.ID == id {
			return i
		}
	}
	return -1
}

// insertSorted places slot after any record with an equal key.
func (s *Store) insertSorted(slot model.TimeSlot) {
	i := sort.Search(len(s.slots), func(i int) bool { return model.Less(slot, s.slots[i]) })
	s.slots = append(s.slots, model.TimeSlot{})
	copy(s.slots[i+1:], s.slots[i:])
	s.slots[i] = slot
}

func sortSlots(slots []model.TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool { return model.Less(slots[i], slots[j]) })
}
