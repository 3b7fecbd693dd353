package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/schoolhub/schoolhub/internal/domain/billing"
	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/pkg/circuitbreaker"
	"github.com/schoolhub/schoolhub/pkg/logger"
	"github.com/schoolhub/schoolhub/pkg/retry"
)

type options struct {
	log          *logger.Logger
	classifier   *billing.Classifier
	publisher    shared.Publisher
	retrier      *retry.Retrier
	breaker      *circuitbreaker.CircuitBreaker
	queueSize    int
	writeTimeout time.Duration
	newID        func() string
}

func defaultOptions(backendName string) options {
	return options{
		log:          logger.Default(),
		retrier:      retry.PersistenceRetrier(shared.IsRetryable),
		breaker:      circuitbreaker.BackendBreaker(backendName, shared.IsRetryable, nil),
		queueSize:    256,
		writeTimeout: 10 * time.Second,
		newID:        uuid.NewString,
	}
}

// Option configures New.
type Option func(*options)

func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClassifier sets the calendar-bound classifier. The default bills
// January..December against the system clock.
func WithClassifier(c *billing.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithPublisher receives change and KPI events after each mutation.
func WithPublisher(p shared.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithRetrier(r *retry.Retrier) Option {
	return func(o *options) {
		if r != nil {
			o.retrier = r
		}
	}
}

func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(o *options) {
		if cb != nil {
			o.breaker = cb
		}
	}
}

func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithIDGenerator replaces uuid.NewString for entities added without an id.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}
