package tui

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/webitel/im-live-notify/internal/service"
)

const maxToasts = 50

var _ service.Alerter = (*Alerter)(nil)

type Severity int8

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

type Toast struct {
	At       time.Time
	Severity Severity
	Text     string
}

// Alerter keeps the most recent toasts for the dashboard. It never blocks:
// a pending redraw signal absorbs bursts.
type Alerter struct {
	clock clockwork.Clock

	mu     sync.Mutex
	toasts []Toast

	changed chan struct{}
}

func NewAlerter(clock clockwork.Clock) *Alerter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Alerter{clock: clock, changed: make(chan struct{}, 1)}
}

func (a *Alerter) Error(title string, err error) {
	text := title
	if err != nil {
		text = fmt.Sprintf("%s: %v", title, err)
	}
	a.push(SeverityError, text)
}

func (a *Alerter) Warn(message string) { a.push(SeverityWarn, message) }
func (a *Alerter) Info(message string) { a.push(SeverityInfo, message) }

// Toasts returns the retained toasts, newest first.
func (a *Alerter) Toasts() []Toast {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Toast, len(a.toasts))
	for i, t := range a.toasts {
		out[len(a.toasts)-1-i] = t
	}
	return out
}

// Changed signals that new toasts are available.
func (a *Alerter) Changed() <-chan struct{} { return a.changed }

func (a *Alerter) push(sev Severity, text string) {
	a.mu.Lock()
	a.toasts = append(a.toasts, Toast{At: a.clock.Now(), Severity: sev, Text: text})
	if len(a.toasts) > maxToasts {
		a.toasts = a.toasts[len(a.toasts)-maxToasts:]
	}
	a.mu.Unlock()

	select {
	case a.changed <- struct{}{}:
	default:
	}
}
