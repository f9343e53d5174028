package view

import (
	"log/slog"
	"time"
)

// NoticeTopic is the bus topic notices are published on.
const NoticeTopic = "notices"

// NoticeKind is the severity of a user notice.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeInfo    NoticeKind = "info"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient user-facing notification.
type Notice struct {
	Kind     NoticeKind    `json:"kind"`
	Title    string        `json:"title"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

// Publisher is the subset of the bus a BusNotifier needs.
type Publisher interface {
	Publish(topic string, v any) error
}

// BusNotifier publishes notices on the process bus.
type BusNotifier struct {
	pub    Publisher
	logger *slog.Logger
}

// NewBusNotifier creates a notifier that publishes on NoticeTopic.
func NewBusNotifier(pub Publisher, logger *slog.Logger) *BusNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusNotifier{pub: pub, logger: logger}
}

// Notify publishes n. Publish failures are logged.
func (b *BusNotifier) Notify(n Notice) {
	if err := b.pub.Publish(NoticeTopic, n); err != nil {
		b.logger.Warn("failed to publish notice", "kind", n.Kind, "title", n.Title, "error", err)
	}
}

// Success builds a success notice.
func Success(title, msg string, d time.Duration) Notice {
	return Notice{Kind: NoticeSuccess, Title: title, Message: msg, Duration: d}
}

// Info builds an info notice.
func Info(title, msg string, d time.Duration) Notice {
	return Notice{Kind: NoticeInfo, Title: title, Message: msg, Duration: d}
}

// Error builds an error notice.
func Error(title, msg string) Notice {
	return Notice{Kind: NoticeError, Title: title, Message: msg}
}
