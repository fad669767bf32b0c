package bus

import (
	"time"

	"github.com/Iron-Ham/arbiter/internal/clock"
	"github.com/Iron-Ham/arbiter/internal/logging"
	"github.com/Iron-Ham/arbiter/internal/message"
)

const (
	// DefaultPollInterval bounds delivery latency when fsnotify misses an
	// event, for example on network filesystems.
	DefaultPollInterval = 250 * time.Millisecond
	// DefaultMaxLogBytes is the log size that triggers rotation.
	DefaultMaxLogBytes int64 = 1 << 20
)

// Option configures a FileBus.
type Option func(*FileBus)

// WithCodec selects the record encoding. Every process sharing a bus
// directory must use the same codec.
func WithCodec(c message.Codec) Option {
	return func(b *FileBus) {
		if c != nil {
			b.codec = c
		}
	}
}

// WithPollInterval sets how often subscribers re-read the log without a
// filesystem notification. Zero or negative values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(b *FileBus) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithMaxLogBytes sets the rotation threshold. Zero or negative values are
// ignored.
func WithMaxLogBytes(n int64) Option {
	return func(b *FileBus) {
		if n > 0 {
			b.maxLogBytes = n
		}
	}
}

// WithLogger attaches a logger for delivery warnings.
func WithLogger(l *logging.Logger) Option {
	return func(b *FileBus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock replaces the clock driving the polling fallback.
func WithClock(c clock.Clock) Option {
	return func(b *FileBus) {
		if c != nil {
			b.clock = c
		}
	}
}
