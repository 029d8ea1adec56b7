package sheet

import "strings"

// Field names a semantic guide column in a header row.
type Field string

const (
	FieldTracking  Field = "tracking_number"
	FieldReference Field = "reference"
	FieldRecipient Field = "recipient"
	FieldCity      Field = "city"
	FieldAddress   Field = "address"
	FieldStatus    Field = "status"
	FieldDate      Field = "date"
)

// fieldKeywords lists header synonyms per field, checked in this order.
// Slices keep the scan deterministic (map iteration order is not).
var fieldKeywords = []struct {
	field    Field
	keywords []string
}{
	{FieldReference, []string{"referencia", "ref", "reference", "codigo", "código"}},
	{FieldRecipient, []string{"destinatario", "cliente", "nombre", "receptor", "consignatario"}},
	{FieldCity, []string{"ciudad", "city", "municipio", "localidad"}},
	{FieldAddress, []string{"direccion", "dirección", "address", "ubicacion", "ubicación"}},
	{FieldStatus, []string{"estado", "status", "situacion", "situación"}},
	{FieldDate, []string{"fecha", "date", "tiempo", "time", "consulta"}},
}

// MapColumns assigns header columns to guide fields. The tracking column
// is fixed by the locator; every other field takes the first column whose
// header contains one of its keywords, and stops searching once found. A
// column is claimed by at most one field. Fields without a matching column
// are simply absent from the result.
func MapColumns(headerRow []string, trackingCol int) map[Field]int {
	mapping := map[Field]int{FieldTracking: trackingCol}
	claimed := map[int]bool{trackingCol: true}

	for _, fk := range fieldKeywords {
	scan:
		for i, cell := range headerRow {
			if claimed[i] {
				continue
			}
			header := strings.ToLower(strings.TrimSpace(cell))
			if header == "" {
				continue
			}
			for _, kw := range fk.keywords {
				if strings.Contains(header, kw) {
					mapping[fk.field] = i
					claimed[i] = true
					break scan
				}
			}
		}
	}
	return mapping
}
