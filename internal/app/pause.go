package app

import (
	"fmt"

	"eduquiz-ledger/internal/domain"
)

// pauseSwitch is the process-wide emergency stop. Toggling is strict: pausing
// an already-paused ledger (or unpausing a running one) fails rather than
// no-opping, so operator mistakes surface.
type pauseSwitch struct {
	paused bool
}

func (p *pauseSwitch) pause() error {
	if p.paused {
		return fmt.Errorf("%w: already paused", domain.ErrInvalidStateTransition)
	}
	p.paused = true
	return nil
}

func (p *pauseSwitch) unpause() error {
	if !p.paused {
		return fmt.Errorf("%w: not paused", domain.ErrInvalidStateTransition)
	}
	p.paused = false
	return nil
}

// requireRunning gates every mutating operation except pause/unpause
// themselves. Read-only queries never consult it.
func (p *pauseSwitch) requireRunning() error {
	if p.paused {
		return domain.ErrPaused
	}
	return nil
}
