package escrow

// State is the position of a pool in its lifecycle.
type State string

const (
	StateActive    State = "active"
	StateEnded     State = "ended"
	StateFinalized State = "finalized"
	StateClosed    State = "closed"
)

// State derives the lifecycle state from the pool flags.
func (p *Pool) State() State {
	switch {
	case p.closed:
		return StateClosed
	case p.IsFinalized:
		return StateFinalized
	case !p.IsActive:
		return StateEnded
	default:
		return StateActive
	}
}

// End moves Active -> Ended.
func (p *Pool) End() error {
	if !p.IsActive {
		return ErrMatchInactive
	}
	if p.IsFinalized {
		return ErrMatchFinalized
	}
	p.IsActive = false
	return nil
}

// checkDistributable holds for Ended pools only.
func (p *Pool) checkDistributable() error {
	if p.IsActive {
		return ErrMatchStillActive
	}
	if p.IsFinalized {
		return ErrMatchAlreadyFinalized
	}
	return nil
}

// MarkFinalized moves Ended -> Finalized.
func (p *Pool) MarkFinalized() error {
	if err := p.checkDistributable(); err != nil {
		return err
	}
	p.IsFinalized = true
	return nil
}

// CanClose reports whether the pool may be destroyed given the current
// fund-holding balance. The balance check comes first so a funded pool is
// reported as not empty whatever its lifecycle state.
func (p *Pool) CanClose(fundBalance uint64) error {
	if fundBalance != 0 {
		return ErrPoolNotEmpty
	}
	if !p.IsFinalized {
		return ErrMatchNotFinalized
	}
	return nil
}

// Close moves Finalized -> Closed.
func (p *Pool) Close(fundBalance uint64) error {
	if err := p.CanClose(fundBalance); err != nil {
		return err
	}
	p.closed = true
	return nil
}
