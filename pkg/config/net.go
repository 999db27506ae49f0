package config

import "time"

// NetConfig contains dialing options for the client.
type NetConfig struct {
	// DialAttempts is the total number of connect attempts; 1 disables retry
	DialAttempts         int `mapstructure:"dial_attempts"`
	DialBackoffInitialMS int `mapstructure:"dial_backoff_initial_ms"`
	DialBackoffMaxMS     int `mapstructure:"dial_backoff_max_ms"`
}

func (n NetConfig) BackoffInitial() time.Duration {
	return time.Duration(n.DialBackoffInitialMS) * time.Millisecond
}

func (n NetConfig) BackoffMax() time.Duration {
	return time.Duration(n.DialBackoffMaxMS) * time.Millisecond
}
