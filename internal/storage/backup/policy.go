package backup

import (
	"fmt"
	"time"
)

const (
	DefaultMaxCount      = 10
	DefaultRetentionDays = 30
)

// Policy bounds the backup pool. A backup is evicted when it is older than
// Horizon or when it ranks at MaxCount or beyond among newer backups. Either
// condition alone suffices. Zero disables the respective bound.
type Policy struct {
	MaxCount int
	Horizon  time.Duration

	// SeparatePools applies MaxCount to auto and manual backups
	// independently. Horizon always applies to both.
	SeparatePools bool
}

// DefaultPolicy returns 10 backups / 30 days in one shared pool.
func DefaultPolicy() Policy {
	return Policy{
		MaxCount: DefaultMaxCount,
		Horizon:  DefaultRetentionDays * 24 * time.Hour,
	}
}

// Validate rejects negative bounds.
func (p Policy) Validate() error {
	if p.MaxCount < 0 {
		return fmt.Errorf("backup: max count must be >= 0, got %d", p.MaxCount)
	}
	if p.Horizon < 0 {
		return fmt.Errorf("backup: horizon must be >= 0, got %s", p.Horizon)
	}
	return nil
}
