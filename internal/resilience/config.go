package resilience

import "time"

// FromRetryConfig converts config values to a RetryConfig. Non-positive
// values keep the defaults.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs, attemptTimeoutSecs int, multiplier, jitterFraction float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	if attemptTimeoutSecs > 0 {
		cfg.AttemptTimeout = time.Duration(attemptTimeoutSecs) * time.Second
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	if jitterFraction >= 0 {
		cfg.JitterFraction = jitterFraction
	}
	return cfg
}

// FromBreakerConfig converts config values to a BreakerConfig.
func FromBreakerConfig(failureThreshold, resetTimeoutSecs int) BreakerConfig {
	cfg := DefaultBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
