package reconcile

import "log/slog"

// Notifier receives one-line user notices (rollbacks, superseded moves,
// reconnect hints). It is constructed at startup and injected into the
// Reconciler; there is no process-wide notification singleton.
type Notifier interface {
	Notify(message string)
}

// NopNotifier discards notices.
type NopNotifier struct{}

func (NopNotifier) Notify(string) {}

// LogNotifier writes notices to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(message string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(message)
}
