package config

import "github.com/yndnr/docguard/internal/telemetry/logger"

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg

	if sanitized.Storage.EncryptionKey != "" {
		sanitized.Storage.EncryptionKey = logger.MaskValue(sanitized.Storage.EncryptionKey)
	}

	return &sanitized
}
