package reliability

import "time"

// IsRetryableHTTPStatus classifies backend statuses worth surfacing with a
// retry affordance. The gateway never retries on its own; this only drives
// the flag shown to the caller.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableAgentClose classifies voice-agent stream closures after which a
// reconnect attempt is reasonable.
func IsRetryableAgentClose(code string) bool {
	switch code {
	case "going_away", "service_restart", "try_again_later", "abnormal_closure":
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
