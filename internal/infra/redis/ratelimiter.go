package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/import-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultFlowExecutionsPerSec int64 = 20
	flowWindow                        = time.Second
	waitStep                          = 10 * time.Millisecond
	waitMax                           = 50 * time.Millisecond
	flowKeyPrefix                     = "import-engine:flowexec"
)

// flowWindowScript counts one execution in the window keyed by KEYS[1] and
// reports whether the count is still within ARGV[1]. The key expires with the
// window so idle organizations leave nothing behind.
var flowWindowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*FlowExecutionLimiter)(nil)

// FlowLimits sets how many flow executions an organization may start per
// second. PerOrg overrides Default for the named organizations.
type FlowLimits struct {
	Default int
	PerOrg  map[string]int
}

// FlowExecutionLimiter caps flow executions per organization per second across
// every worker process sharing the Redis instance.
type FlowExecutionLimiter struct {
	client       *goredis.Client
	defaultLimit int64
	orgLimits    map[string]int64
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewFlowExecutionLimiter(client *goredis.Client, limits FlowLimits) (*FlowExecutionLimiter, error) {
	return newFlowExecutionLimiter(client, limits, time.Now, sleepWithContext)
}

func newFlowExecutionLimiter(
	client *goredis.Client,
	limits FlowLimits,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*FlowExecutionLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	defaultLimit := int64(limits.Default)
	if defaultLimit <= 0 {
		defaultLimit = defaultFlowExecutionsPerSec
	}

	orgLimits := make(map[string]int64, len(limits.PerOrg))
	for org, limit := range limits.PerOrg {
		key := normalizeOrg(org)
		if key == "" {
			return nil, fmt.Errorf("flow limit override has an empty organization")
		}
		if limit <= 0 {
			return nil, fmt.Errorf("flow limit override for %s must be positive", key)
		}
		orgLimits[key] = int64(limit)
	}

	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &FlowExecutionLimiter{
		client:       client,
		defaultLimit: defaultLimit,
		orgLimits:    orgLimits,
		now:          nowFn,
		sleep:        sleepFn,
	}, nil
}

// LimitFor returns the per-second execution budget that applies to org.
func (r *FlowExecutionLimiter) LimitFor(org string) int64 {
	if limit, ok := r.orgLimits[normalizeOrg(org)]; ok {
		return limit
	}
	return r.defaultLimit
}

func (r *FlowExecutionLimiter) Allow(ctx context.Context, org string) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("flow execution limiter is not initialized")
	}

	key := normalizeOrg(org)
	if key == "" {
		return false, fmt.Errorf("orgInternalName is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	window := r.now().UTC().Truncate(flowWindow)
	redisKey := fmt.Sprintf("%s:%s:%d", flowKeyPrefix, key, window.Unix())
	allowed, err := flowWindowScript.Run(ctx, r.client, []string{redisKey}, r.LimitFor(key), flowWindow.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate flow execution limit for %s: %w", key, err)
	}
	return allowed == 1, nil
}

// Wait blocks until org may start another flow execution. Each retry backs off
// linearly but never sleeps past the start of the next window.
func (r *FlowExecutionLimiter) Wait(ctx context.Context, org string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	step := waitStep
	for {
		allowed, err := r.Allow(ctx, org)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, r.backoff(step)); err != nil {
			return err
		}
		if step < waitMax {
			step += waitStep
		}
	}
}

func (r *FlowExecutionLimiter) backoff(step time.Duration) time.Duration {
	now := r.now().UTC()
	untilNextWindow := now.Truncate(flowWindow).Add(flowWindow).Sub(now)
	if untilNextWindow > 0 && untilNextWindow < step {
		return untilNextWindow
	}
	return step
}

func normalizeOrg(org string) string {
	return strings.ToLower(strings.TrimSpace(org))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
