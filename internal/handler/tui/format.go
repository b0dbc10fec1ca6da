package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/webitel/im-live-notify/internal/domain/model"
)

// termui inline styling: [text](fg:color,mod:bold)

func statusColor(s model.ConnectionStatus) string {
	switch s {
	case model.StatusConnected:
		return "green"
	case model.StatusConnecting, model.StatusReconnecting:
		return "yellow"
	case model.StatusError:
		return "red"
	}
	return "white"
}

func formatStatus(st model.State, unread int, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status: [%s](fg:%s,mod:bold)", st.Status, statusColor(st.Status))

	if st.Heartbeat.IsStale {
		b.WriteString("   [STALE](fg:red,mod:bold)")
	}
	if !st.Heartbeat.LastAt.IsZero() {
		fmt.Fprintf(&b, "   Heartbeat: %s ago", now.Sub(st.Heartbeat.LastAt).Truncate(time.Second))
	}
	fmt.Fprintf(&b, "\nUnread: [%d](mod:bold)", unread)

	if st.Retry.Attempt > 0 {
		fmt.Fprintf(&b, "   Attempt: %d", st.Retry.Attempt)
		if st.Retry.MaxAttempts > 0 {
			fmt.Fprintf(&b, "/%d", st.Retry.MaxAttempts)
		}
		if st.Retry.Pending {
			fmt.Fprintf(&b, "   Next retry in %s", st.Retry.NextDelay)
		}
	}
	return b.String()
}

func formatNotification(n model.Notification) string {
	mark := "•"
	if n.IsRead {
		mark = " "
	}
	line := fmt.Sprintf("%s %s <%s> %s", mark, n.CreatedAt.Local().Format("15:04:05"), n.Type, escape(n.Message))
	if !n.Target.IsZero() {
		line += fmt.Sprintf(" (%s/%s)", n.Target.Kind, escape(n.Target.ID))
	}
	if !n.IsRead {
		line = "[" + line + "](mod:bold)"
	}
	return line
}

func formatToast(t Toast) string {
	color := "white"
	switch t.Severity {
	case SeverityWarn:
		color = "yellow"
	case SeverityError:
		color = "red"
	}
	return fmt.Sprintf("%s [%s](fg:%s)", t.At.Local().Format("15:04:05"), escape(t.Text), color)
}

// escape keeps user text from being parsed as style markup.
func escape(s string) string {
	return strings.NewReplacer("[", "(", "]", ")").Replace(s)
}
