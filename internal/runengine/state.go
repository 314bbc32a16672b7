package runengine

import "github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"

// transition names one edge of the run state machine (spec.md §4.4). The
// table lists every legal edge; ReportFinish consults it through
// canTransition, and the claim and cancel paths each apply only their own
// edge from it.
type transition struct {
	from domain.RunStatus
	to   domain.RunStatus
}

var allowedTransitions = map[transition]bool{
	{domain.RunPending, domain.RunRunning}:  true, // claim
	{domain.RunPending, domain.RunCanceled}: true, // cancel
	{domain.RunPending, domain.RunFailed}:   true, // dispatch-fatal
	{domain.RunRunning, domain.RunSuccess}:  true, // finish-success
	{domain.RunRunning, domain.RunFailed}:   true, // finish-failure, timeout
	{domain.RunRunning, domain.RunCanceled}: true, // cancel-observed
}

// canTransition reports whether moving a run from `from` to `to` is a
// legal edge. Terminal states have no outgoing edge at all, matching
// spec.md §4.4's "no transition out of a terminal state".
func canTransition(from, to domain.RunStatus) bool {
	if from.Terminal() {
		return false
	}
	return allowedTransitions[transition{from, to}]
}
