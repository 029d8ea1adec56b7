package guides

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/GuideBox/internal/models"
	"github.com/BearBump/GuideBox/internal/sheet"
)

// IngestResult summarizes one spreadsheet import. Errors holds per-row
// failures that did not stop the batch.
type IngestResult struct {
	Created        int
	Updated        int
	TotalProcessed int
	Errors         []string
	Guides         []*models.Guide
}

// Ingest parses an uploaded spreadsheet and reconciles every data row into
// the store inside a single transaction. A row that cannot be read is
// recorded in the result and skipped; a broken file or a store failure rolls
// the whole batch back.
func (s *Service) Ingest(ctx context.Context, file []byte, fileName string) (*IngestResult, error) {
	if len(file) == 0 {
		return nil, errors.Wrap(ErrInvalidFile, "file is empty")
	}

	grid, err := sheet.ParseGrid(file)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidFile, "parse spreadsheet: %v", err)
	}

	loc, ok := sheet.LocateHeader(grid)
	if !ok {
		return nil, ErrNoHeader
	}
	cols := sheet.MapColumns(grid[loc.Row], loc.TrackingCol)

	now := time.Now().UTC()
	res := &IngestResult{}

	// Cache entries for updated guides are dropped only after the batch
	// commits: a rollback must leave them intact, and dropping early would
	// let a concurrent read cache pre-commit state.
	var updatedIDs []uint64

	err = s.repo.InBatch(ctx, func(ops BatchOps) error {
		for i := loc.Row + 1; i < len(grid); i++ {
			rowNum := i + 1 // 1-based, as shown in the sheet

			in, skip, rowErr := sheet.ExtractRow(grid[i], cols, rowNum, fileName)
			if skip {
				continue
			}
			if rowErr != nil {
				res.Errors = append(res.Errors, rowErr.Error())
				slog.Warn("skipping spreadsheet row", "file", fileName, "row", rowNum, "error", rowErr)
				continue
			}

			existing, err := ops.FindByTrackingNumber(ctx, in.TrackingNumber)
			if err != nil {
				return errors.Wrapf(err, "row %d: find %s", rowNum, in.TrackingNumber)
			}

			ch := reconcile(existing, in, now)
			switch ch.kind {
			case changeCreate:
				if _, err := ops.InsertGuide(ctx, ch.input, ch.initial); err != nil {
					return errors.Wrapf(err, "row %d: insert %s", rowNum, in.TrackingNumber)
				}
				res.Created++
			default:
				if err := ops.UpdateGuide(ctx, ch.update); err != nil {
					return errors.Wrapf(err, "row %d: update %s", rowNum, in.TrackingNumber)
				}
				res.Updated++
				updatedIDs = append(updatedIDs, ch.update.GuideID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "ingest batch")
	}

	for _, id := range updatedIDs {
		s.dropCache(ctx, id)
	}

	res.TotalProcessed = res.Created + res.Updated

	guides, err := s.repo.ListAllGuides(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list guides after ingest")
	}
	res.Guides = guides

	slog.Info("spreadsheet ingested",
		"file", fileName,
		"created", res.Created,
		"updated", res.Updated,
		"row_errors", len(res.Errors),
	)
	return res, nil
}
