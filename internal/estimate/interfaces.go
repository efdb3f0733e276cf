package estimate

import (
	"context"
	"time"
)

// Looker performs one upstream estimate lookup for a validated cert.
type Looker interface {
	Lookup(ctx context.Context, cert string) (Result, error)
}

// Cache stores successful estimates by cert.
type Cache interface {
	Get(ctx context.Context, cert string) (Estimate, bool, error)
	Set(ctx context.Context, cert string, est Estimate) error
}

// LookupStore persists lookup history.
type LookupStore interface {
	Record(ctx context.Context, record LookupRecord) error
	Recent(ctx context.Context, cert string, limit int) ([]LookupRecord, error)
}

// Publisher pushes lookup events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Limiter throttles upstream lookups.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces lookup IDs.
type IDGenerator interface {
	NewID() (string, error)
}
