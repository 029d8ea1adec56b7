package guides

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/GuideBox/internal/broker/messages"
	"github.com/BearBump/GuideBox/internal/cache"
	"github.com/BearBump/GuideBox/internal/integrations/carrier"
	"github.com/BearBump/GuideBox/internal/models"
)

var (
	ErrNotFound       = errors.New("guide not found")
	ErrTerminalStatus = errors.New("guide is in a terminal status")
	ErrNoHeader       = errors.New("header row not found")
	ErrInvalidFile    = errors.New("invalid spreadsheet file")
)

const (
	defaultPerPage = 10
	maxPerPage     = 500
)

// ListFilter narrows and pages GetGuides. Zero values mean "no filter".
type ListFilter struct {
	Status   string
	Search   string
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PerPage  int
}

type Page struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// BatchOps is the per-transaction surface of the store. Everything called
// through it inside one InBatch callback commits or rolls back together.
type BatchOps interface {
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Guide, error)
	InsertGuide(ctx context.Context, in models.GuideInput, initial models.StatusChange) (*models.Guide, error)
	UpdateGuide(ctx context.Context, upd GuideUpdate) error
}

type Repository interface {
	InBatch(ctx context.Context, fn func(ops BatchOps) error) error

	GetGuide(ctx context.Context, id uint64) (*models.Guide, error)
	ListGuides(ctx context.Context, f ListFilter) ([]*models.Guide, int, error)
	ListAllGuides(ctx context.Context) ([]*models.Guide, error)
	ListSyncableGuides(ctx context.Context) ([]*models.Guide, error)

	ListHistory(ctx context.Context, guideID uint64, limit, offset int) ([]*models.StatusChange, error)
	LatestChange(ctx context.Context, guideID uint64) (*models.StatusChange, error)

	UpdateGuide(ctx context.Context, upd GuideUpdate) error
	RescheduleGuide(ctx context.Context, id uint64, nextCheckAt time.Time) error
	DeleteGuide(ctx context.Context, id uint64) (bool, error)
	DeleteGuides(ctx context.Context, ids []uint64) (int64, error)

	CountByStatus(ctx context.Context) (map[string]int, error)
	CountSyncedSince(ctx context.Context, since time.Time) (int, error)
}

type Service struct {
	repo    Repository
	cache   cache.BytesCache
	carrier carrier.Client

	currentTTL time.Duration
	syncDelay  time.Duration
}

func New(repo Repository, c cache.BytesCache, carrierClient carrier.Client, currentTTL, syncDelay time.Duration) *Service {
	return &Service{
		repo:       repo,
		cache:      c,
		carrier:    carrierClient,
		currentTTL: currentTTL,
		syncDelay:  syncDelay,
	}
}

func (s *Service) ListGuides(ctx context.Context, f ListFilter) ([]*models.Guide, Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = defaultPerPage
	}
	if f.PerPage > maxPerPage {
		f.PerPage = maxPerPage
	}

	items, total, err := s.repo.ListGuides(ctx, f)
	if err != nil {
		return nil, Page{}, errors.Wrap(err, "list guides")
	}

	lastPage := (total + f.PerPage - 1) / f.PerPage
	if lastPage < 1 {
		lastPage = 1
	}
	return items, Page{
		CurrentPage: f.Page,
		LastPage:    lastPage,
		PerPage:     f.PerPage,
		Total:       total,
	}, nil
}

// GuideInfo is the detail view: the guide, its most recent history entry
// and whether an on-demand carrier sync is still allowed.
type GuideInfo struct {
	Guide      *models.Guide
	LastChange *models.StatusChange
	CanSync    bool
}

func (s *Service) GetGuideInfo(ctx context.Context, id uint64) (*GuideInfo, error) {
	g, err := s.getGuideCached(ctx, id)
	if err != nil {
		return nil, err
	}

	last, err := s.repo.LatestChange(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "latest change")
	}

	return &GuideInfo{
		Guide:      g,
		LastChange: last,
		CanSync:    !models.IsTerminalStatus(g.Status),
	}, nil
}

func (s *Service) ListHistory(ctx context.Context, id uint64, limit, offset int) ([]*models.StatusChange, error) {
	if g, err := s.repo.GetGuide(ctx, id); err != nil {
		return nil, errors.Wrap(err, "get guide")
	} else if g == nil {
		return nil, ErrNotFound
	}

	if limit <= 0 {
		limit = 100
	}
	if limit > maxPerPage {
		limit = maxPerPage
	}
	if offset < 0 {
		offset = 0
	}

	changes, err := s.repo.ListHistory(ctx, id, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	return changes, nil
}

// SyncResult reports one on-demand carrier check. Changed is true whenever
// sync state was written, even when the status text stayed the same.
type SyncResult struct {
	GuideID        uint64
	TrackingNumber string
	PreviousStatus string
	Status         string
	StatusRaw      string
	Changed        bool
	Note           string
}

// SyncGuide checks the carrier right now and reconciles the answer into the
// store. Terminal guides are rejected up front.
func (s *Service) SyncGuide(ctx context.Context, id uint64) (*SyncResult, error) {
	g, err := s.repo.GetGuide(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get guide")
	}
	if g == nil {
		return nil, ErrNotFound
	}
	if models.IsTerminalStatus(g.Status) {
		return nil, errors.Wrapf(ErrTerminalStatus, "guide %s is %s", g.TrackingNumber, g.Status)
	}
	return s.syncExisting(ctx, g)
}

func (s *Service) syncExisting(ctx context.Context, g *models.Guide) (*SyncResult, error) {
	res, err := s.carrier.CheckGuide(ctx, g.TrackingNumber)
	if err != nil {
		return nil, errors.Wrapf(err, "check guide %s", g.TrackingNumber)
	}

	out := &SyncResult{
		GuideID:        g.ID,
		TrackingNumber: g.TrackingNumber,
		PreviousStatus: g.Status,
		Status:         res.Status,
		StatusRaw:      res.StatusRaw,
	}

	ch := reconcile(g, carrierInput(g, res), time.Now().UTC())
	if ch.kind != changeSync {
		out.Note = "no change"
		return out, nil
	}

	if err := s.repo.UpdateGuide(ctx, ch.update); err != nil {
		return nil, errors.Wrapf(err, "update guide %d", g.ID)
	}
	// Changed covers any persisted sync write, a date-only refresh included.
	out.Changed = true
	if ch.update.Notes != nil {
		out.Note = *ch.update.Notes
	}
	s.dropCache(ctx, g.ID)

	slog.Info("guide synced",
		"guide_id", g.ID,
		"tracking_number", g.TrackingNumber,
		"from", g.Status,
		"to", res.Status,
	)
	return out, nil
}

type BulkSyncOutcome struct {
	TrackingNumber string `json:"tracking_number"`
	Outcome        string `json:"outcome"` // synced, unchanged or error
	Detail         string `json:"detail,omitempty"`
}

type BulkSyncReport struct {
	Total     int               `json:"total"`
	Synced    int               `json:"synced"`
	Unchanged int               `json:"unchanged"`
	Failed    int               `json:"failed"`
	Results   []BulkSyncOutcome `json:"results"`
}

// SyncAll walks every syncable guide sequentially, pausing syncDelay between
// checks so the carrier is not hammered. One failing guide does not stop the
// sweep.
func (s *Service) SyncAll(ctx context.Context) (*BulkSyncReport, error) {
	pending, err := s.repo.ListSyncableGuides(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list syncable guides")
	}

	report := &BulkSyncReport{Total: len(pending)}
	for i, g := range pending {
		if i > 0 && s.syncDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.syncDelay):
			}
		}

		res, err := s.syncExisting(ctx, g)
		switch {
		case err != nil:
			report.Failed++
			report.Results = append(report.Results, BulkSyncOutcome{
				TrackingNumber: g.TrackingNumber,
				Outcome:        "error",
				Detail:         err.Error(),
			})
			slog.Warn("bulk sync failed for guide", "tracking_number", g.TrackingNumber, "error", err)
		case res.Changed:
			report.Synced++
			report.Results = append(report.Results, BulkSyncOutcome{
				TrackingNumber: g.TrackingNumber,
				Outcome:        "synced",
				Detail:         res.Note,
			})
		default:
			report.Unchanged++
			report.Results = append(report.Results, BulkSyncOutcome{
				TrackingNumber: g.TrackingNumber,
				Outcome:        "unchanged",
			})
		}
	}
	return report, nil
}

// ApplyCarrierUpdate reconciles one guide-worker message into the store.
// Unknown guides are dropped, not retried: the guide was deleted after the
// worker claimed it.
func (s *Service) ApplyCarrierUpdate(ctx context.Context, msg messages.GuideSynced) error {
	if msg.GuideID == 0 {
		return errors.New("guide_id is empty")
	}

	if msg.Error != nil {
		slog.Warn("carrier check failed for guide", "guide_id", msg.GuideID, "error", *msg.Error)
		return errors.Wrap(s.repo.RescheduleGuide(ctx, msg.GuideID, msg.NextCheckAt), "reschedule guide")
	}

	g, err := s.repo.GetGuide(ctx, msg.GuideID)
	if err != nil {
		return errors.Wrap(err, "get guide")
	}
	if g == nil {
		slog.Warn("dropping update for unknown guide", "guide_id", msg.GuideID)
		return nil
	}
	if models.IsTerminalStatus(g.Status) {
		return nil
	}

	ch := reconcile(g, carrierInput(g, carrier.CheckResult{
		Status:    msg.Status,
		StatusRaw: msg.StatusRaw,
		StatusAt:  msg.StatusAt,
	}), msg.CheckedAt)

	if ch.kind != changeSync {
		return errors.Wrap(s.repo.RescheduleGuide(ctx, g.ID, msg.NextCheckAt), "reschedule guide")
	}

	next := msg.NextCheckAt
	ch.update.NextCheckAt = &next
	if err := s.repo.UpdateGuide(ctx, ch.update); err != nil {
		return errors.Wrapf(err, "update guide %d", g.ID)
	}
	s.dropCache(ctx, g.ID)

	slog.Info("applied carrier update",
		"guide_id", g.ID,
		"tracking_number", g.TrackingNumber,
		"from", g.Status,
		"to", msg.Status,
	)
	return nil
}

type StatsReport struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	SyncedToday int            `json:"synced_today"`
}

func (s *Service) Stats(ctx context.Context) (*StatsReport, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count by status")
	}

	byStatus := map[string]int{
		models.StatusPending:    0,
		models.StatusInProgress: 0,
		models.StatusDone:       0,
		models.StatusError:      0,
		models.StatusCancelled:  0,
	}
	total := 0
	for status, n := range counts {
		byStatus[status] = n
		total += n
	}

	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	syncedToday, err := s.repo.CountSyncedSince(ctx, midnight)
	if err != nil {
		return nil, errors.Wrap(err, "count synced since midnight")
	}

	return &StatsReport{
		Total:       total,
		ByStatus:    byStatus,
		SyncedToday: syncedToday,
	}, nil
}

func (s *Service) DeleteGuide(ctx context.Context, id uint64) error {
	ok, err := s.repo.DeleteGuide(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "delete guide %d", id)
	}
	if !ok {
		return ErrNotFound
	}
	s.dropCache(ctx, id)
	return nil
}

func (s *Service) DeleteGuides(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, errors.New("ids are empty")
	}
	n, err := s.repo.DeleteGuides(ctx, ids)
	if err != nil {
		return 0, errors.Wrap(err, "delete guides")
	}
	for _, id := range ids {
		s.dropCache(ctx, id)
	}
	return n, nil
}

func carrierInput(g *models.Guide, res carrier.CheckResult) models.GuideInput {
	return models.GuideInput{
		TrackingNumber: g.TrackingNumber,
		Reference:      g.Reference,
		Recipient:      g.Recipient,
		City:           g.City,
		Address:        g.Address,
		Status:         res.Status,
		StatusRaw:      res.StatusRaw,
		QueryDate:      res.StatusAt,
		SourceFile:     g.SourceFile,
	}
}

func currentKey(id uint64) string {
	return fmt.Sprintf("guide:%d:current", id)
}

// getGuideCached serves the detail view from redis when possible. Cache
// failures fall through to the store.
func (s *Service) getGuideCached(ctx context.Context, id uint64) (*models.Guide, error) {
	if b, ok, err := s.cache.Get(ctx, currentKey(id)); err != nil {
		slog.Debug("cache get failed", "guide_id", id, "error", err)
	} else if ok {
		var g models.Guide
		if err := json.Unmarshal(b, &g); err == nil {
			return &g, nil
		}
	}

	g, err := s.repo.GetGuide(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get guide")
	}
	if g == nil {
		return nil, ErrNotFound
	}

	if b, err := json.Marshal(g); err == nil {
		if err := s.cache.Set(ctx, currentKey(id), b, s.currentTTL); err != nil {
			slog.Debug("cache set failed", "guide_id", id, "error", err)
		}
	}
	return g, nil
}

func (s *Service) dropCache(ctx context.Context, id uint64) {
	if err := s.cache.Del(ctx, currentKey(id)); err != nil {
		slog.Debug("cache del failed", "guide_id", id, "error", err)
	}
}
