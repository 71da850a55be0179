// Package buildinfo exposes the version, commit and build time injected
// via ldflags, plus the Go toolchain and platform.
package buildinfo
