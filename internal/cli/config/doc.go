// Package config defines the docguard configuration.
//
//   - spec.go: Config struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation of backends, bounds and keys
//   - sanitize.go: Log sanitization (hide the encryption key)
//   - loader.go: Layered loading via internal/infra/confloader
package config
