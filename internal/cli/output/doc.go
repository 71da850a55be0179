// Package output renders command results as a table, JSON or YAML.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: aligned tables built from structs, slices and maps
//   - json.go: indented JSON
//   - yaml.go: YAML via gopkg.in/yaml.v3
package output
