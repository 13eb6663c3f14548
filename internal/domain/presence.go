package domain

import (
	"time"

	"github.com/google/uuid"
)

// PresenceStatus is the visible availability of a user
type PresenceStatus string

const (
	PresenceOnline       PresenceStatus = "online"
	PresenceAway         PresenceStatus = "away"
	PresenceDoNotDisturb PresenceStatus = "dnd"
	PresenceOffline      PresenceStatus = "offline"
)

// Valid reports whether s is a known presence status
func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceDoNotDisturb, PresenceOffline:
		return true
	}
	return false
}

// StatusSource tells whether the visible status was derived or pinned by the user
type StatusSource string

const (
	StatusSourceAuto   StatusSource = "auto"
	StatusSourceManual StatusSource = "manual"
)

// PresenceRecord is the stored presence of a user.
// Status always equals *ManualStatus when Source is manual, otherwise AutoStatus.
type PresenceRecord struct {
	UserID       uuid.UUID       `json:"user_id"`
	Status       PresenceStatus  `json:"status"`
	Source       StatusSource    `json:"status_source"`
	ManualStatus *PresenceStatus `json:"manual_status,omitempty"`
	AutoStatus   PresenceStatus  `json:"auto_status"`
	LastSeenAt   time.Time       `json:"last_seen_at"`
}

// NewOfflinePresence is the record of a user never seen before
func NewOfflinePresence(userID uuid.UUID) *PresenceRecord {
	return &PresenceRecord{
		UserID:     userID,
		Status:     PresenceOffline,
		Source:     StatusSourceAuto,
		AutoStatus: PresenceOffline,
	}
}

// IsPinned reports whether a manual override is in effect
func (r *PresenceRecord) IsPinned() bool {
	return r.Source == StatusSourceManual && r.ManualStatus != nil
}

// Recompute restores the visible status invariant
func (r *PresenceRecord) Recompute() {
	if r.IsPinned() {
		r.Status = *r.ManualStatus
		return
	}
	r.Source = StatusSourceAuto
	r.ManualStatus = nil
	r.Status = r.AutoStatus
}
