package guides

import (
	"fmt"
	"time"

	"github.com/BearBump/GuideBox/internal/models"
)

// GuideUpdate is the explicit change set the reconciler produces for an
// existing guide. The store applies it atomically; nothing outside the two
// Set groups is touched. History, when present, is appended as-is.
type GuideUpdate struct {
	GuideID uint64

	SetContact bool
	Reference  *string
	Recipient  string
	City       *string
	Address    string
	SourceFile string

	SetStatus  bool
	Status     string
	QueryDate  *time.Time
	LastSyncAt time.Time
	Notes      *string

	NextCheckAt *time.Time

	History *models.StatusChange
}

type changeKind int

const (
	changeCreate changeKind = iota
	changeSync
	changeCosmetic
)

type change struct {
	kind    changeKind
	input   models.GuideInput   // create only
	initial models.StatusChange // create only
	update  GuideUpdate
}

// reconcile decides what an incoming row (or carrier check) does to the
// store: create a new guide, apply a state-changing update, or refresh
// cosmetic fields only.
//
// A meaningful change is: the status text differs, a non-nil query date
// differs at second precision, or the transition is forward progress.
// Guides already in a terminal status never take status updates here;
// only their contact data keeps following the source.
func reconcile(existing *models.Guide, in models.GuideInput, now time.Time) change {
	if existing == nil {
		return change{
			kind:  changeCreate,
			input: in,
			initial: models.StatusChange{
				NewStatus: in.Status,
				Action:    models.HistoryActionCreated,
				ChangedAt: now,
			},
		}
	}

	upd := GuideUpdate{
		GuideID:    existing.ID,
		SetContact: true,
		Reference:  in.Reference,
		Recipient:  in.Recipient,
		City:       in.City,
		Address:    in.Address,
		SourceFile: in.SourceFile,
	}

	if models.IsTerminalStatus(existing.Status) {
		return change{kind: changeCosmetic, update: upd}
	}

	statusChanged := in.Status != existing.Status
	dateChanged := queryDateDiffers(existing.QueryDate, in.QueryDate)
	forward := models.IsForwardProgress(existing.Status, in.Status)

	if !statusChanged && !dateChanged && !forward {
		return change{kind: changeCosmetic, update: upd}
	}

	upd.SetStatus = true
	upd.Status = in.Status
	upd.QueryDate = in.QueryDate
	if upd.QueryDate == nil {
		upd.QueryDate = existing.QueryDate
	}
	upd.LastSyncAt = now

	note := "data updated"
	if statusChanged {
		note = fmt.Sprintf("auto-sync: %s → %s", existing.Status, in.Status)
		upd.History = &models.StatusChange{
			GuideID:        existing.ID,
			PreviousStatus: existing.Status,
			NewStatus:      in.Status,
			Action:         models.HistoryActionStatusChange,
			ChangedAt:      now,
		}
	}
	upd.Notes = &note

	return change{kind: changeSync, update: upd}
}

// queryDateDiffers compares at second precision: spreadsheet dates do not
// carry sub-second resolution, and the store may round.
func queryDateDiffers(old, incoming *time.Time) bool {
	if incoming == nil {
		return false
	}
	if old == nil {
		return true
	}
	return !incoming.Truncate(time.Second).Equal(old.Truncate(time.Second))
}
