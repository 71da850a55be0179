package integrity

import (
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://docguard.invalid/document.schema.json"

// documentSchema describes the required shape of a persisted document.
// Record contents are unconstrained objects.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "clients", "projects", "tasks", "config", "metadata"],
  "properties": {
    "version":  {"type": "integer"},
    "clients":  {"type": "array", "items": {"type": "object"}},
    "projects": {"type": "array", "items": {"type": "object"}},
    "tasks":    {"type": "array", "items": {"type": "object"}},
    "config":   {"type": "object"},
    "metadata": {
      "type": "object",
      "required": ["checksum"],
      "properties": {
        "lastSync":   {"type": "string"},
        "lastBackup": {"type": "string"},
        "checksum":   {"type": "string"}
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaURL, strings.NewReader(documentSchema)); err != nil {
		panic("integrity: add schema resource: " + err.Error())
	}
	return compiler.MustCompile(schemaURL)
}
