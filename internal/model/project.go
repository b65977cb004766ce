package model

import "time"

// Project groups tracked time. Archived projects keep their slots but are
// hidden from default statistics.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnknownProjectName labels slots whose project no longer exists.
const UnknownProjectName = "Unknown Project"

// DefaultProjectColor is used when a project has no color.
const DefaultProjectColor = "#94a3b8"
