package fake

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/BearBump/GuideBox/internal/integrations/carrier"
	"github.com/BearBump/GuideBox/internal/models"
)

// FakeClient simulates a carrier: the reported status is deterministic per
// tracking number, so repeated checks of the same guide are stable and
// tests can assert on them. Roughly half the guides progress to done, a
// few report failures.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) CheckGuide(ctx context.Context, trackingNumber string) (carrier.CheckResult, error) {
	now := time.Now().UTC()

	h := fnv.New32a()
	_, _ = h.Write([]byte(trackingNumber))
	v := h.Sum32()

	var raw string
	switch v % 10 {
	case 0:
		raw = "Devuelto"
	case 1, 2, 3, 4:
		raw = "Entregado"
	default:
		raw = "En tránsito"
	}

	return carrier.CheckResult{
		Status:    models.NormalizeStatus(raw),
		StatusRaw: raw,
		StatusAt:  &now,
	}, nil
}
