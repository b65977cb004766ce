package model

// TimeEntry is a maximal run of consecutive same-project slots on one date.
// Entries are derived from slots and never stored.
type TimeEntry struct {
	ID        SlotID   `json:"id"`
	ProjectID string   `json:"project_id"`
	Date      string   `json:"date"`
	StartTime float64  `json:"start_time"`
	EndTime   float64  `json:"end_time"`
	SlotIDs   []SlotID `json:"slot_ids"`
	Note      *string  `json:"note"`
}

// Hours returns the duration of the entry.
func (e TimeEntry) Hours() float64 {
	return e.EndTime - e.StartTime
}

// Covers reports whether tick falls inside [StartTime, EndTime).
func (e TimeEntry) Covers(tick float64) bool {
	return tick >= e.StartTime && tick < e.EndTime
}
