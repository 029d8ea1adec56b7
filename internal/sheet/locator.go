package sheet

import "strings"

// trackingKeywords are the header spellings that identify the tracking
// number column. Uploads come from several carriers and languages, so the
// list is deliberately loose; matching is equals-or-contains on the
// lowercased trimmed cell.
var trackingKeywords = []string{
	"guia",
	"guía",
	"numero de guia",
	"número de guía",
	"numero_guia",
	"número_guía",
	"numero guia",
	"número guia",
	"número guía",
	"no. guia",
	"no. guía",
	"num guia",
	"num guía",
	"guide",
	"tracking",
}

type HeaderLocation struct {
	Row         int
	TrackingCol int
}

// LocateHeader scans the whole grid, rows top-to-bottom and cells
// left-to-right, for the first cell matching a tracking keyword. The header
// is not assumed to be row 0: real uploads carry titles, logos and blank
// rows above it.
func LocateHeader(grid [][]string) (HeaderLocation, bool) {
	for r, row := range grid {
		for c, cell := range row {
			text := strings.ToLower(strings.TrimSpace(cell))
			if text == "" {
				continue
			}
			for _, kw := range trackingKeywords {
				if text == kw || strings.Contains(text, kw) {
					return HeaderLocation{Row: r, TrackingCol: c}, true
				}
			}
		}
	}
	return HeaderLocation{}, false
}
