package ratelimit

import "context"

// RateLimiter throttles flow executions per organization.
type RateLimiter interface {
	Allow(ctx context.Context, org string) (bool, error)
	Wait(ctx context.Context, org string) error
}

// Unlimited is a RateLimiter that never throttles.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }

func (Unlimited) Wait(context.Context, string) error { return nil }
