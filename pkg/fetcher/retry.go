package fetcher

import (
	"math/rand"
	"time"
)

// backoffFor computes the wait before the next attempt: exponential growth
// (base * 2^(attempt-1)) capped at MaxBackoff, with ±20% jitter to avoid
// synchronized retry bursts across partitions.
func backoffFor(cfg Config, attempt int) time.Duration {
	backoff := cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
			break
		}
	}

	jittered := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
	if jittered > cfg.MaxBackoff {
		jittered = cfg.MaxBackoff
	}
	return jittered
}
