package carrier

import (
	"context"
	"time"
)

// CheckResult is one status check against a carrier. Status is canonical,
// StatusRaw keeps the carrier's own wording, StatusAt is the activity time
// reported by the carrier (nil when it reports none).
type CheckResult struct {
	Status    string
	StatusRaw string
	StatusAt  *time.Time
}

type Client interface {
	CheckGuide(ctx context.Context, trackingNumber string) (CheckResult, error)
}
