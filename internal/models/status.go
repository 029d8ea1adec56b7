package models

import "strings"

// Canonical guide statuses. Source spreadsheets carry free-text variants
// (mostly Spanish, some English); everything is normalized to these five.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusError      = "error"
	StatusCancelled  = "cancelled"
)

// statusSynonyms maps lowercased trimmed source text to a canonical status.
// Unknown text falls back to StatusPending on purpose: a guide we cannot
// classify is still worth tracking.
var statusSynonyms = map[string]string{
	StatusPending:    StatusPending,
	StatusInProgress: StatusInProgress,
	StatusDone:       StatusDone,
	StatusError:      StatusError,
	StatusCancelled:  StatusCancelled,

	"pendiente": StatusPending,

	// transit / dispatch
	"en tránsito": StatusInProgress,
	"en transito": StatusInProgress,
	"transito":    StatusInProgress,
	"tránsito":    StatusInProgress,
	"en proceso":  StatusInProgress,
	"en_proceso":  StatusInProgress,
	"enproceso":   StatusInProgress,
	"proceso":     StatusInProgress,
	"enviado":     StatusInProgress,
	"despachado":  StatusInProgress,
	"ruta":        StatusInProgress,
	"en ruta":     StatusInProgress,
	"in transit":  StatusInProgress,
	"shipped":     StatusInProgress,

	// delivery / completion
	"terminado":  StatusDone,
	"entregado":  StatusDone,
	"entregada":  StatusDone,
	"finalizado": StatusDone,
	"completado": StatusDone,
	"exitoso":    StatusDone,
	"recibido":   StatusDone,
	"delivered":  StatusDone,
	"completed":  StatusDone,

	// failure / return / rejection
	"fallido":      StatusError,
	"fallo":        StatusError,
	"no entregado": StatusError,
	"devuelto":     StatusError,
	"devolucion":   StatusError,
	"rechazado":    StatusError,
	"failed":       StatusError,
	"returned":     StatusError,

	// annulment / suspension
	"cancelado":  StatusCancelled,
	"cancelada":  StatusCancelled,
	"anulado":    StatusCancelled,
	"suspendido": StatusCancelled,
	"canceled":   StatusCancelled,
}

// NormalizeStatus maps arbitrary source text onto a canonical status.
func NormalizeStatus(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if st, ok := statusSynonyms[key]; ok {
		return st
	}
	return StatusPending
}

// IsTerminalStatus reports whether a status is final. Terminal guides
// refuse synchronization.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusDone, StatusError, StatusCancelled:
		return true
	}
	return false
}

// IsForwardProgress reports whether from -> to is a natural advancement
// along pending -> in_progress -> terminal.
func IsForwardProgress(from, to string) bool {
	switch from {
	case StatusPending:
		switch to {
		case StatusInProgress, StatusDone, StatusError, StatusCancelled:
			return true
		}
	case StatusInProgress:
		switch to {
		case StatusDone, StatusError, StatusCancelled:
			return true
		}
	}
	return false
}
