package model

import (
	"encoding/json"
	"strings"
)

// SlotID identifies a TimeSlot. A slot that has not been confirmed by the
// remote store carries a local (temporary) id; everything read back from the
// store carries a persisted one.
type SlotID struct {
	value string
	local bool
}

// LocalID returns a temporary, client-generated id.
func LocalID(v string) SlotID { return SlotID{value: v, local: true} }

// PersistedID returns a server-assigned id.
func PersistedID(v string) SlotID { return SlotID{value: v} }

// IsLocal reports whether the id is a temporary one.
func (id SlotID) IsLocal() bool { return id.local }

// IsZero reports whether the id is unset.
func (id SlotID) IsZero() bool { return id.value == "" }

// String returns the raw id value.
func (id SlotID) String() string { return id.value }

// MarshalJSON encodes the raw value. Local ids never leave the process, so the
// tag is not serialised.
func (id SlotID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON decodes a persisted id.
func (id *SlotID) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*id = PersistedID(v)
	return nil
}

// TimeSlot is one quarter hour owned by a project on a calendar day.
type TimeSlot struct {
	ID        SlotID  `json:"id"`
	ProjectID string  `json:"project_id"`
	Date      string  `json:"date"`
	TimeSlot  float64 `json:"time_slot"`
	Note      *string `json:"note"`
}

// HasNote reports whether the slot carries a non-blank note.
func (s TimeSlot) HasNote() bool {
	return s.Note != nil && strings.TrimSpace(*s.Note) != ""
}

// NoteText returns the note or "".
func (s TimeSlot) NoteText() string {
	if s.Note == nil {
		return ""
	}
	return *s.Note
}

// Clone returns a copy that shares no pointers with s.
func (s TimeSlot) Clone() TimeSlot {
	if s.Note != nil {
		n := *s.Note
		s.Note = &n
	}
	return s
}

// SlotKey addresses a quarter hour independent of its owner.
type SlotKey struct {
	Date     string
	TimeSlot float64
}

// Key returns the (date, time_slot) pair of s.
func (s TimeSlot) Key() SlotKey {
	return SlotKey{Date: s.Date, TimeSlot: s.TimeSlot}
}

// Less orders slots by date, then time_slot.
func Less(a, b TimeSlot) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	return a.TimeSlot < b.TimeSlot
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string { return &s }
