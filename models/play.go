package models

import "time"

// Play is the structured half of a play. Its diagram payload lives in the
// document store keyed by ID; this row is authoritative for existence.
type Play struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	TeamID uint   `gorm:"not null;index" json:"team_id"`
	Name   string `gorm:"not null" json:"name"`
}
