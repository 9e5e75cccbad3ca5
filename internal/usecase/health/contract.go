package health

import "context"

// StorePinger checks durable storage availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// Checker checks a remote provider (embedding or generation).
type Checker interface {
	HealthCheck(ctx context.Context) error
}
