package guides_api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/GuideBox/internal/models"
	"github.com/BearBump/GuideBox/internal/services/guides"
)

// maxImportSize bounds one uploaded spreadsheet.
const maxImportSize = 20 << 20

type GuidesAPI struct {
	svc *guides.Service
}

func New(svc *guides.Service) *GuidesAPI {
	return &GuidesAPI{svc: svc}
}

// Routes mounts every guide endpoint on a fresh router.
func (a *GuidesAPI) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", a.listGuides)
	r.Post("/import", a.importGuides)
	r.Post("/sync-all", a.syncAll)
	r.Get("/stats", a.stats)
	r.Delete("/", a.deleteGuides)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", a.getGuide)
		r.Get("/history", a.listHistory)
		r.Post("/sync", a.syncGuide)
		r.Delete("/", a.deleteGuide)
	})
	return r
}

type guideJSON struct {
	ID             uint64     `json:"id"`
	TrackingNumber string     `json:"tracking_number"`
	Reference      *string    `json:"reference,omitempty"`
	Recipient      string     `json:"recipient"`
	City           *string    `json:"city,omitempty"`
	Address        string     `json:"address"`
	Status         string     `json:"status"`
	QueryDate      *time.Time `json:"query_date,omitempty"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	SourceFile     string     `json:"source_file,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type changeJSON struct {
	ID             uint64    `json:"id"`
	GuideID        uint64    `json:"guide_id"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status"`
	Action         string    `json:"action"`
	ChangedAt      time.Time `json:"changed_at"`
}

func toGuideJSON(g *models.Guide) guideJSON {
	return guideJSON{
		ID:             g.ID,
		TrackingNumber: g.TrackingNumber,
		Reference:      g.Reference,
		Recipient:      g.Recipient,
		City:           g.City,
		Address:        g.Address,
		Status:         g.Status,
		QueryDate:      g.QueryDate,
		LastSyncAt:     g.LastSyncAt,
		Notes:          g.Notes,
		SourceFile:     g.SourceFile,
		CreatedAt:      g.CreatedAt,
		UpdatedAt:      g.UpdatedAt,
	}
}

func toGuideJSONs(gs []*models.Guide) []guideJSON {
	out := make([]guideJSON, 0, len(gs))
	for _, g := range gs {
		out = append(out, toGuideJSON(g))
	}
	return out
}

func toChangeJSON(h *models.StatusChange) changeJSON {
	return changeJSON{
		ID:             h.ID,
		GuideID:        h.GuideID,
		PreviousStatus: h.PreviousStatus,
		NewStatus:      h.NewStatus,
		Action:         h.Action,
		ChangedAt:      h.ChangedAt,
	}
}

func (a *GuidesAPI) listGuides(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := guides.ListFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	f.DateFrom = parseQueryTime(q.Get("date_from"))
	f.DateTo = parseQueryTime(q.Get("date_to"))

	items, page, err := a.svc.ListGuides(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": toGuideJSONs(items),
		"meta": page,
	})
}

func (a *GuidesAPI) getGuide(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	info, err := a.svc.GetGuideInfo(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"guide":    toGuideJSON(info.Guide),
		"can_sync": info.CanSync,
	}
	if info.LastChange != nil {
		resp["last_change"] = toChangeJSON(info.LastChange)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *GuidesAPI) listHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	changes, err := a.svc.ListHistory(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]changeJSON, 0, len(changes))
	for _, h := range changes {
		out = append(out, toChangeJSON(h))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (a *GuidesAPI) importGuides(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	res, err := a.svc.Ingest(r.Context(), data, header.Filename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"created":         res.Created,
		"updated":         res.Updated,
		"total_processed": res.TotalProcessed,
		"errors":          res.Errors,
		"data":            toGuideJSONs(res.Guides),
	})
}

func (a *GuidesAPI) syncGuide(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := a.svc.SyncGuide(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"guide_id":        res.GuideID,
		"tracking_number": res.TrackingNumber,
		"previous_status": res.PreviousStatus,
		"status":          res.Status,
		"status_raw":      res.StatusRaw,
		"changed":         res.Changed,
		"note":            res.Note,
	})
}

func (a *GuidesAPI) syncAll(w http.ResponseWriter, r *http.Request) {
	report, err := a.svc.SyncAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *GuidesAPI) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *GuidesAPI) deleteGuide(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.svc.DeleteGuide(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *GuidesAPI) deleteGuides(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []uint64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if len(req.IDs) == 0 {
		writeErrorStatus(w, http.StatusBadRequest, "ids are required")
		return
	}
	n, err := a.svc.DeleteGuides(r.Context(), req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeErrorStatus(w, http.StatusBadRequest, "invalid guide id")
		return 0, false
	}
	return id, true
}

func parseQueryTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, guides.ErrNotFound):
		writeErrorStatus(w, http.StatusNotFound, "guide not found")
	case errors.Is(err, guides.ErrTerminalStatus):
		writeErrorStatus(w, http.StatusConflict, err.Error())
	case errors.Is(err, guides.ErrNoHeader):
		writeErrorStatus(w, http.StatusBadRequest, "header row with a tracking column not found")
	case errors.Is(err, guides.ErrInvalidFile):
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeErrorStatus(w, http.StatusInternalServerError, "internal error")
	}
}

func writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
