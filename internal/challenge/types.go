package challenge

import "fmt"

type Phase string

type Status string

type Side string

const (
	PhaseEval1  Phase = "eval1"
	PhaseEval2  Phase = "eval2"
	PhaseFunded Phase = "funded"
)

const (
	StatusActive     Status = "active"
	StatusBreached   Status = "breached"
	StatusFundedLive Status = "funded_live"
)

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

var phaseOrder = []Phase{PhaseEval1, PhaseEval2, PhaseFunded}

// Next returns the phase following p. The second result is false when p is
// the final phase or unknown.
func (p Phase) Next() (Phase, bool) {
	for i, v := range phaseOrder {
		if v == p && i+1 < len(phaseOrder) {
			return phaseOrder[i+1], true
		}
	}
	return "", false
}

func (p Phase) Valid() bool {
	for _, v := range phaseOrder {
		if v == p {
			return true
		}
	}
	return false
}

func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}

// CanTrade reports whether the status still accepts trades.
func (s Status) CanTrade() bool {
	return s == StatusActive || s == StatusFundedLive
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}
