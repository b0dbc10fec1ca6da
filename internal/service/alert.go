package service

import (
	"log/slog"
	"time"

	"github.com/webitel/im-live-notify/internal/domain/model"
)

// Alerter is the toast surface. Implementations must not block: calls arrive
// on the connection loop.
type Alerter interface {
	Error(title string, err error)
	Warn(message string)
	Info(message string)
}

// [GUARD]
var _ Alerter = (*LogAlerter)(nil)

// LogAlerter renders toasts as log records.
type LogAlerter struct {
	logger *slog.Logger
}

func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger.With(slog.String("surface", "toast"))}
}

func (a *LogAlerter) Error(title string, err error) {
	a.logger.Error("TOAST_ERROR", slog.String("title", title), slog.Any("err", err))
}

func (a *LogAlerter) Warn(message string) {
	a.logger.Warn("TOAST_WARN", slog.String("message", message))
}

func (a *LogAlerter) Info(message string) {
	a.logger.Info("TOAST_INFO", slog.String("message", message))
}

// Recorder receives delivery metrics. The zero-cost default is NopRecorder.
type Recorder interface {
	Status(s model.ConnectionStatus)
	RetryScheduled(attempt int, delay time.Duration)
	Delivered()
	Duplicate()
	Stale()
	Unread(n int)
}

var _ Recorder = NopRecorder{}

type NopRecorder struct{}

func (NopRecorder) Status(model.ConnectionStatus)     {}
func (NopRecorder) RetryScheduled(int, time.Duration) {}
func (NopRecorder) Delivered()                        {}
func (NopRecorder) Duplicate()                        {}
func (NopRecorder) Stale()                            {}
func (NopRecorder) Unread(int)                        {}
