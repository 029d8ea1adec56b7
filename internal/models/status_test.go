package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus_SynonymTable(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"pending", StatusPending},
		{"pendiente", StatusPending},
		{"Pendiente", StatusPending},
		{"  PENDIENTE  ", StatusPending},

		{"in_progress", StatusInProgress},
		{"en tránsito", StatusInProgress},
		{"en transito", StatusInProgress},
		{"transito", StatusInProgress},
		{"tránsito", StatusInProgress},
		{"en proceso", StatusInProgress},
		{"en_proceso", StatusInProgress},
		{"enproceso", StatusInProgress},
		{"proceso", StatusInProgress},
		{"enviado", StatusInProgress},
		{"despachado", StatusInProgress},
		{"ruta", StatusInProgress},
		{"en ruta", StatusInProgress},
		{"In Transit", StatusInProgress},
		{"shipped", StatusInProgress},

		{"done", StatusDone},
		{"terminado", StatusDone},
		{"entregado", StatusDone},
		{"entregada", StatusDone},
		{"finalizado", StatusDone},
		{"completado", StatusDone},
		{"exitoso", StatusDone},
		{"recibido", StatusDone},
		{"Delivered", StatusDone},
		{"completed", StatusDone},

		{"error", StatusError},
		{"fallido", StatusError},
		{"fallo", StatusError},
		{"no entregado", StatusError},
		{"devuelto", StatusError},
		{"devolucion", StatusError},
		{"rechazado", StatusError},
		{"failed", StatusError},
		{"returned", StatusError},

		{"cancelled", StatusCancelled},
		{"cancelado", StatusCancelled},
		{"cancelada", StatusCancelled},
		{"anulado", StatusCancelled},
		{"suspendido", StatusCancelled},
		{"canceled", StatusCancelled},

		// fail-open default
		{"", StatusPending},
		{"   ", StatusPending},
		{"quién sabe", StatusPending},
		{"lost in warehouse", StatusPending},
	}
	for _, c := range cases {
		require.Equal(t, c.want, NormalizeStatus(c.raw), "raw=%q", c.raw)
	}
}

func TestIsTerminalStatus(t *testing.T) {
	require.False(t, IsTerminalStatus(StatusPending))
	require.False(t, IsTerminalStatus(StatusInProgress))
	require.True(t, IsTerminalStatus(StatusDone))
	require.True(t, IsTerminalStatus(StatusError))
	require.True(t, IsTerminalStatus(StatusCancelled))
}

func TestIsForwardProgress(t *testing.T) {
	for _, to := range []string{StatusInProgress, StatusDone, StatusError, StatusCancelled} {
		require.True(t, IsForwardProgress(StatusPending, to), "pending -> %s", to)
	}
	for _, to := range []string{StatusDone, StatusError, StatusCancelled} {
		require.True(t, IsForwardProgress(StatusInProgress, to), "in_progress -> %s", to)
	}
	require.False(t, IsForwardProgress(StatusPending, StatusPending))
	require.False(t, IsForwardProgress(StatusInProgress, StatusPending))
	require.False(t, IsForwardProgress(StatusInProgress, StatusInProgress))

	// terminal states are final
	for _, from := range []string{StatusDone, StatusError, StatusCancelled} {
		for _, to := range []string{StatusPending, StatusInProgress, StatusDone, StatusError, StatusCancelled} {
			require.False(t, IsForwardProgress(from, to), "%s -> %s", from, to)
		}
	}
}
