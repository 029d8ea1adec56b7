package models

import "time"

type Guide struct {
	ID             uint64
	TrackingNumber string
	Reference      *string
	Recipient      string
	City           *string
	Address        string
	Status         string
	QueryDate      *time.Time
	LastSyncAt     *time.Time
	Notes          *string
	SourceFile     string
	NextCheckAt    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StatusChange is one append-only history entry for a guide.
type StatusChange struct {
	ID             uint64
	GuideID        uint64
	PreviousStatus string
	NewStatus      string
	Action         string
	ChangedAt      time.Time
}

const (
	HistoryActionCreated      = "created"
	HistoryActionStatusChange = "status_change"
)

// GuideInput is one extracted spreadsheet row (or a carrier check result)
// ready for reconciliation. Status is already canonical, StatusRaw keeps
// the source cell text.
type GuideInput struct {
	TrackingNumber string
	Reference      *string
	Recipient      string
	City           *string
	Address        string
	Status         string
	StatusRaw      string
	QueryDate      *time.Time
	SourceFile     string
}
