// Package gate decides how the dashboard shell renders for a session:
// unobstructed, with a trial-countdown banner, or fully blocked behind the
// suspension modal. Evaluate is a pure function of session state so it can
// be tested without a server.
package gate

import (
	"time"

	"tagihin_dashboard/internal/platform"
	"tagihin_dashboard/internal/session"
)

// Mode selects the shell rendering
type Mode string

const (
	// ModeOpen renders the page unobstructed
	ModeOpen Mode = "open"
	// ModeTrialBanner adds the dismissible trial countdown banner
	ModeTrialBanner Mode = "trial_banner"
	// ModeSuspended blocks the page behind the non-dismissible payment modal
	ModeSuspended Mode = "suspended"
)

// trialBannerThresholdDays: the banner only nags within the last week
const trialBannerThresholdDays = 7

// Decision is what the shell should render
type Decision struct {
	Mode               Mode
	TrialDaysRemaining int
	Suspension         *platform.SuspensionSignal
}

// Blocked reports whether page content must not be interactive
func (d Decision) Blocked() bool {
	return d.Mode == ModeSuspended
}

// Evaluate maps a session snapshot to a render decision. A suspended session
// always wins over the trial banner.
func Evaluate(snap session.Snapshot, now time.Time) Decision {
	if snap.State == session.StateSuspended {
		return Decision{Mode: ModeSuspended, Suspension: snap.Suspension}
	}

	p := snap.Principal
	if p != nil && p.Status == platform.StatusTrial && p.TrialEndsAt != nil {
		days := TrialDaysRemaining(*p.TrialEndsAt, now)
		if days <= trialBannerThresholdDays {
			return Decision{Mode: ModeTrialBanner, TrialDaysRemaining: days}
		}
	}

	return Decision{Mode: ModeOpen}
}

// TrialDaysRemaining is ceil((endsAt - now) / 24h), floored at 0.
// Day granularity only; callers recompute on a coarse interval.
func TrialDaysRemaining(endsAt, now time.Time) int {
	diff := endsAt.Sub(now)
	if diff <= 0 {
		return 0
	}
	const day = 24 * time.Hour
	return int((diff + day - 1) / day)
}
