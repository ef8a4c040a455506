// Package common provides shared utilities and default configuration.
package common

import "time"

// Worker timing defaults, used when config values are absent or invalid.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultNavTimeout   = 30 * time.Second
	DefaultSettleDelay  = 1 * time.Second
	DefaultJobDelay     = 1 * time.Second
)
