package messages

import "time"

// GuideSynced is published by guide-worker after a carrier check and
// applied by guide-api through the usual reconciliation path.
type GuideSynced struct {
	GuideID   uint64    `json:"guide_id"`
	CheckedAt time.Time `json:"checked_at"`

	Status    string     `json:"status,omitempty"`
	StatusRaw string     `json:"status_raw,omitempty"`
	StatusAt  *time.Time `json:"status_at,omitempty"`

	NextCheckAt time.Time `json:"next_check_at"`

	Error *string `json:"error,omitempty"`
}
