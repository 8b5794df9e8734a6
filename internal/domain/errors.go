package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by detection, admission and execution.
var (
	ErrTransientNetwork       = errors.New("transient network error")
	ErrVenueRejection         = errors.New("venue rejected order")
	ErrBudgetExhausted        = errors.New("reference budget exhausted")
	ErrStaleMarket            = errors.New("stale market")
	ErrImplausibleProbability = errors.New("implausible probability")
	ErrUntrustedSource        = errors.New("untrusted reference source")
	ErrNoReference            = errors.New("no matching reference quote")
	ErrLegRisk                = errors.New("leg risk")
	ErrCapitalCapExceeded     = errors.New("capital cap exceeded")
	ErrKillSwitchActive       = errors.New("kill switch active")
	ErrOrderUnfilled          = errors.New("order not filled")
)

// ReasonCode is the machine-readable reason attached to every skip or denial.
type ReasonCode string

const (
	ReasonAlreadyOpen    ReasonCode = "already_open"
	ReasonMarketHalted   ReasonCode = "market_halted"
	ReasonBankrollFloor  ReasonCode = "bankroll_floor"
	ReasonCooldown       ReasonCode = "cooldown"
	ReasonDailyCap       ReasonCode = "daily_cap"
	ReasonCycleCap       ReasonCode = "cycle_cap"
	ReasonGameCap        ReasonCode = "game_cap"
	ReasonSizeTooSmall   ReasonCode = "size_too_small"
	ReasonKillSwitch     ReasonCode = "kill_switch"
	ReasonBudget         ReasonCode = "budget_exhausted"
	ReasonMinInterval    ReasonCode = "min_interval"
	ReasonStale          ReasonCode = "stale_market"
	ReasonImplausible    ReasonCode = "implausible_probability"
	ReasonUntrusted      ReasonCode = "untrusted_source"
	ReasonNoReference    ReasonCode = "no_reference"
	ReasonNoEdge         ReasonCode = "no_edge"
	ReasonTypeDisabled   ReasonCode = "type_disabled"
	ReasonThinBook       ReasonCode = "thin_book"
	ReasonVenueRejection ReasonCode = "venue_rejection"
	ReasonTransient      ReasonCode = "transient_network"
	ReasonTimeout        ReasonCode = "poll_timeout"
	ReasonCancelled      ReasonCode = "cancelled"
	ReasonLegRisk        ReasonCode = "leg_risk"
	ReasonPanic          ReasonCode = "panic"
)

// Denial is returned by the admission gate. It is not a failure: callers skip
// the candidate and move on.
type Denial struct {
	Reason ReasonCode
	Detail string
}

func (d *Denial) Error() string {
	if d.Detail == "" {
		return fmt.Sprintf("admission denied: %s", d.Reason)
	}
	return fmt.Sprintf("admission denied: %s (%s)", d.Reason, d.Detail)
}

// Unwrap maps the reason onto the taxonomy so errors.Is works on denials.
func (d *Denial) Unwrap() error {
	switch d.Reason {
	case ReasonKillSwitch:
		return ErrKillSwitchActive
	case ReasonMarketHalted:
		return ErrLegRisk
	default:
		return ErrCapitalCapExceeded
	}
}

// Deny builds a Denial with a formatted detail.
func Deny(reason ReasonCode, format string, args ...any) *Denial {
	return &Denial{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts a reason code from any error in the taxonomy.
func ReasonOf(err error) ReasonCode {
	var d *Denial
	if errors.As(err, &d) {
		return d.Reason
	}
	switch {
	case errors.Is(err, ErrKillSwitchActive):
		return ReasonKillSwitch
	case errors.Is(err, ErrLegRisk):
		return ReasonLegRisk
	case errors.Is(err, ErrVenueRejection):
		return ReasonVenueRejection
	case errors.Is(err, ErrTransientNetwork):
		return ReasonTransient
	case errors.Is(err, ErrBudgetExhausted):
		return ReasonBudget
	case errors.Is(err, ErrStaleMarket):
		return ReasonStale
	case errors.Is(err, ErrImplausibleProbability):
		return ReasonImplausible
	case errors.Is(err, ErrUntrustedSource):
		return ReasonUntrusted
	case errors.Is(err, ErrNoReference):
		return ReasonNoReference
	case errors.Is(err, ErrOrderUnfilled):
		return ReasonTimeout
	case errors.Is(err, ErrCapitalCapExceeded):
		return ReasonDailyCap
	}
	return ""
}
