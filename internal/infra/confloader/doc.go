// Package confloader loads layered configuration and watches config files.
//
// Sources, later overriding earlier:
//
//  1. Defaults already present in the target struct
//  2. YAML configuration file
//  3. DOCGUARD_* environment variables
//  4. Explicit overrides (command-line flags)
//
// Watcher reports writes to watched files using fsnotify.
package confloader
