package tui

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-live-notify/internal/domain/model"
)

func TestAlerter_KeepsNewestFirstAndCaps(t *testing.T) {
	a := NewAlerter(clockwork.NewFakeClock())

	for i := range maxToasts + 5 {
		a.Info(fmt.Sprintf("t%d", i))
	}
	a.Error("Connection failed", errors.New("boom"))

	toasts := a.Toasts()
	require.Len(t, toasts, maxToasts)
	assert.Equal(t, "Connection failed: boom", toasts[0].Text)
	assert.Equal(t, SeverityError, toasts[0].Severity)
	assert.Equal(t, fmt.Sprintf("t%d", maxToasts+4), toasts[1].Text)

	select {
	case <-a.Changed():
	default:
		t.Fatal("no redraw signal")
	}
}

func TestFormatStatus(t *testing.T) {
	now := time.Unix(1_700_000_100, 0)

	text := formatStatus(model.State{
		Status:    model.StatusReconnecting,
		Heartbeat: model.HeartbeatState{LastAt: now.Add(-90 * time.Second), IsStale: true},
		Retry:     model.RetryState{Attempt: 2, Pending: true, NextDelay: 2 * time.Second, MaxAttempts: 5},
	}, 3, now)

	assert.Contains(t, text, "[reconnecting](fg:yellow,mod:bold)")
	assert.Contains(t, text, "STALE")
	assert.Contains(t, text, "Heartbeat: 1m30s ago")
	assert.Contains(t, text, "Unread: [3]")
	assert.Contains(t, text, "Attempt: 2/5")
	assert.Contains(t, text, "Next retry in 2s")

	idle := formatStatus(model.State{}, 0, now)
	assert.NotContains(t, idle, "Attempt")
	assert.NotContains(t, idle, "Heartbeat")
}

func TestFormatNotification(t *testing.T) {
	n := model.Notification{
		ID:      "1",
		Type:    model.TypeMention,
		Message: "see [this]",
		Target:  model.Target{Kind: model.TargetComment, ID: "7"},
	}

	unread := formatNotification(n)
	assert.Contains(t, unread, "(mod:bold)")
	assert.Contains(t, unread, "see (this)")
	assert.Contains(t, unread, "(comment/7)")

	n.IsRead = true
	assert.NotContains(t, formatNotification(n), "mod:bold")
}
