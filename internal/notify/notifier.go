package notify

// Notifier is a minimal text notification port. It is intentionally small
// so components can depend on it without importing concrete
// implementations. Delivery is best-effort: callers log and swallow
// errors, they never propagate them into the trading path.
type Notifier interface {
	SendText(text string) error
}

// Noop discards every message.
type Noop struct{}

func (Noop) SendText(string) error { return nil }
