package memory

// DefaultMaxMailboxSize caps a single recipient's mailbox, counting
// both pending and delivered-but-unacknowledged messages.
const DefaultMaxMailboxSize = 10000

type options struct {
	maxMailboxSize int
}

func defaultOptions() *options {
	return &options{maxMailboxSize: DefaultMaxMailboxSize}
}

// Option configures the store.
type Option func(*options)

// WithMaxMailboxSize overrides the per-recipient mailbox capacity.
// Non-positive values keep the default.
func WithMaxMailboxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxMailboxSize = n
		}
	}
}
