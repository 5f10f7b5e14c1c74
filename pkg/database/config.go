package database

import "time"

// Config holds the SQLite connection settings used by the store manager.
type Config struct {
	DatabasePath    string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns settings suitable for a single-node deployment.
func DefaultConfig(path string) *Config {
	return &Config{
		DatabasePath:    path,
		MaxConnections:  10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}
