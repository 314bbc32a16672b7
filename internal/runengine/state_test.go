package runengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

func TestCanTransition_AllowedEdges(t *testing.T) {
	cases := []struct {
		from, to domain.RunStatus
	}{
		{domain.RunPending, domain.RunRunning},
		{domain.RunPending, domain.RunCanceled},
		{domain.RunPending, domain.RunFailed},
		{domain.RunRunning, domain.RunSuccess},
		{domain.RunRunning, domain.RunFailed},
		{domain.RunRunning, domain.RunCanceled},
	}
	for _, c := range cases {
		assert.True(t, canTransition(c.from, c.to), "%s -> %s should be allowed", c.from, c.to)
	}
}

func TestCanTransition_RejectsReverseAndSkippedEdges(t *testing.T) {
	cases := []struct {
		from, to domain.RunStatus
	}{
		{domain.RunRunning, domain.RunPending},
		{domain.RunPending, domain.RunSuccess},
		{domain.RunSuccess, domain.RunRunning},
		{domain.RunFailed, domain.RunPending},
	}
	for _, c := range cases {
		assert.False(t, canTransition(c.from, c.to), "%s -> %s should be rejected", c.from, c.to)
	}
}

func TestCanTransition_NoEdgeLeavesTerminalState(t *testing.T) {
	for _, terminal := range []domain.RunStatus{domain.RunSuccess, domain.RunFailed, domain.RunCanceled} {
		for _, to := range []domain.RunStatus{domain.RunPending, domain.RunRunning, domain.RunSuccess, domain.RunFailed, domain.RunCanceled} {
			assert.False(t, canTransition(terminal, to), "%s is terminal, should have no outgoing edge to %s", terminal, to)
		}
	}
}
