package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tagihin_dashboard/internal/platform"
	"tagihin_dashboard/internal/session"
)

var now = time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)

func trialSnapshot(endsAt time.Time) session.Snapshot {
	return session.Snapshot{
		SessionID: "sess-1",
		State:     session.StateAuthenticated,
		Principal: &platform.Principal{
			ID:          1,
			Status:      platform.StatusTrial,
			TrialEndsAt: &endsAt,
		},
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		snap     session.Snapshot
		wantMode Mode
		wantDays int
	}{
		{
			name: "active account is open",
			snap: session.Snapshot{
				State:     session.StateAuthenticated,
				Principal: &platform.Principal{Status: platform.StatusActive},
			},
			wantMode: ModeOpen,
		},
		{
			name:     "trial with more than a week left is open",
			snap:     trialSnapshot(now.Add(8 * 24 * time.Hour)),
			wantMode: ModeOpen,
		},
		{
			name:     "trial at exactly seven days shows the banner",
			snap:     trialSnapshot(now.Add(7 * 24 * time.Hour)),
			wantMode: ModeTrialBanner,
			wantDays: 7,
		},
		{
			name:     "trial ending in three and a half days rounds up",
			snap:     trialSnapshot(now.Add(3*24*time.Hour + 12*time.Hour)),
			wantMode: ModeTrialBanner,
			wantDays: 4,
		},
		{
			name:     "trial past its end still banners at zero days",
			snap:     trialSnapshot(now.Add(-time.Hour)),
			wantMode: ModeTrialBanner,
			wantDays: 0,
		},
		{
			name: "suspended session blocks regardless of trial",
			snap: session.Snapshot{
				State:      session.StateSuspended,
				Principal:  &platform.Principal{Status: platform.StatusSuspended},
				Suspension: &platform.SuspensionSignal{Reason: platform.ReasonPaymentOverdue},
			},
			wantMode: ModeSuspended,
		},
		{
			name: "suspended session without principal still blocks",
			snap: session.Snapshot{
				State:      session.StateSuspended,
				Suspension: &platform.SuspensionSignal{Reason: platform.ReasonAccountSuspended},
			},
			wantMode: ModeSuspended,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.snap, now)
			assert.Equal(t, tt.wantMode, d.Mode)
			assert.Equal(t, tt.wantDays, d.TrialDaysRemaining)
			if tt.wantMode == ModeSuspended {
				assert.True(t, d.Blocked())
				assert.NotNil(t, d.Suspension)
			} else {
				assert.False(t, d.Blocked())
			}
		})
	}
}

func TestTrialDaysRemaining(t *testing.T) {
	tests := []struct {
		name   string
		endsAt time.Time
		want   int
	}{
		{name: "exact day boundary", endsAt: now.Add(48 * time.Hour), want: 2},
		{name: "one second past a boundary rounds up", endsAt: now.Add(24*time.Hour + time.Second), want: 2},
		{name: "under a day rounds up to one", endsAt: now.Add(time.Minute), want: 1},
		{name: "already ended", endsAt: now.Add(-time.Second), want: 0},
		{name: "exactly now", endsAt: now, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrialDaysRemaining(tt.endsAt, now))
		})
	}
}
