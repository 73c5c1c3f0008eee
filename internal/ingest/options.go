package ingest

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option configures the ingest services.
type Option func(*options)

type options struct {
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// WithLogger sets the logger used to report progress and failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides sync run id generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

func buildOptions(opts []Option) options {
	o := options{
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
