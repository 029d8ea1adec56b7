package sheet

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/GuideBox/internal/models"
)

const valueMissing = "N/A"

// dateLayouts is the best-effort set tried by parseDate, most specific
// first. Source files mix ISO and latin day-first formats.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"02-01-2006 15:04",
	"02-01-2006",
	"2/1/2006",
	"2/1/06",
}

// ExtractRow builds reconciliation input from one data row. rowNum is the
// 1-based spreadsheet row used in error messages.
//
// Returns skip=true for rows whose every cell is blank. An empty tracking
// number is a row-level error: the row is dropped, the batch goes on.
func ExtractRow(row []string, cols map[Field]int, rowNum int, sourceFile string) (models.GuideInput, bool, error) {
	if isBlankRow(row) {
		return models.GuideInput{}, true, nil
	}

	trackingNumber := strings.TrimSpace(cellAt(row, cols, FieldTracking))
	if trackingNumber == "" {
		return models.GuideInput{}, false, errors.Errorf("row %d: empty tracking number", rowNum)
	}

	rawStatus := strings.TrimSpace(cellAt(row, cols, FieldStatus))
	if rawStatus == "" {
		rawStatus = "pending"
	}

	in := models.GuideInput{
		TrackingNumber: trackingNumber,
		Reference:      optional(cellAt(row, cols, FieldReference)),
		Recipient:      orMissing(cellAt(row, cols, FieldRecipient)),
		City:           optional(cellAt(row, cols, FieldCity)),
		Address:        orMissing(cellAt(row, cols, FieldAddress)),
		Status:         models.NormalizeStatus(rawStatus),
		StatusRaw:      rawStatus,
		QueryDate:      parseDate(cellAt(row, cols, FieldDate)),
		SourceFile:     sourceFile,
	}
	return in, false, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// cellAt returns the raw cell for a mapped field, "" when the field is
// unmapped or the row is shorter than the header.
func cellAt(row []string, cols map[Field]int, f Field) string {
	i, ok := cols[f]
	if !ok || i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func orMissing(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return valueMissing
	}
	return s
}

// parseDate never fails a row: unparseable input is just an absent date.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
