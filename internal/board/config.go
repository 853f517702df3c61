package board

import (
	"fmt"
	"time"

	"github.com/joescharf/issueboard/internal/similarity"
)

// Config holds the tunables of the admission engine.
type Config struct {
	// Window is how many of the newest issues a new title is compared against.
	Window int

	// PendingTTL is how long a creation suspended on a duplicate advisory can
	// still be confirmed through a token.
	PendingTTL time.Duration
}

// DefaultConfig returns the default admission configuration.
func DefaultConfig() Config {
	return Config{
		Window:     similarity.DefaultWindow,
		PendingTTL: 10 * time.Minute,
	}
}

// Validate checks if the configuration has valid values.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("duplicates.window must be positive (got %d)", c.Window)
	}
	if c.Window > 500 {
		return fmt.Errorf("duplicates.window too large (got %d, max 500)", c.Window)
	}
	if c.PendingTTL <= 0 {
		return fmt.Errorf("duplicates.pending_ttl must be positive (got %v)", c.PendingTTL)
	}
	if c.PendingTTL > 24*time.Hour {
		return fmt.Errorf("duplicates.pending_ttl too large (got %v, max 24h)", c.PendingTTL)
	}
	return nil
}
