package domain

import (
	"encoding/json"
	"time"
)

// CurrentVersion is the document version written by new documents.
const CurrentVersion = 1

// Record is an opaque domain record (a client, project, task or the config
// block). The persistence core never interprets its fields.
type Record map[string]any

// Metadata carries persistence bookkeeping for a Document.
type Metadata struct {
	// LastSync is the time the document was last handed to the writer.
	LastSync time.Time `json:"lastSync,omitzero"`

	// LastBackup is the time of the most recent backup known to the store.
	LastBackup time.Time `json:"lastBackup,omitzero"`

	// Checksum is the hex digest of the document with Checksum cleared.
	Checksum string `json:"checksum"`
}

// Document is the single structured document persisted by the store.
//
// Collections must be non-nil (use NewDocument) so they serialize as
// arrays; a nil slice encodes as null and fails structural validation.
type Document struct {
	Version  int      `json:"version"`
	Clients  []Record `json:"clients"`
	Projects []Record `json:"projects"`
	Tasks    []Record `json:"tasks"`
	Config   Record   `json:"config"`
	Metadata Metadata `json:"metadata"`
}

// NewDocument returns an empty, structurally valid document.
func NewDocument() *Document {
	return &Document{
		Version:  CurrentVersion,
		Clients:  []Record{},
		Projects: []Record{},
		Tasks:    []Record{},
		Config:   Record{},
	}
}

// Clone returns a deep copy of the document.
//
// Nested maps and slices inside records are copied; scalar values
// (strings, numbers, json.Number, bools) are shared since they are immutable.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{
		Version:  d.Version,
		Clients:  cloneRecords(d.Clients),
		Projects: cloneRecords(d.Projects),
		Tasks:    cloneRecords(d.Tasks),
		Config:   cloneRecord(d.Config),
		Metadata: d.Metadata,
	}
}

// WithoutChecksum returns a deep copy with Metadata.Checksum cleared.
func (d *Document) WithoutChecksum() *Document {
	c := d.Clone()
	if c != nil {
		c.Metadata.Checksum = ""
	}
	return c
}

// RecordCount returns the total number of clients, projects and tasks.
func (d *Document) RecordCount() int {
	if d == nil {
		return 0
	}
	return len(d.Clients) + len(d.Projects) + len(d.Tasks)
}

func cloneRecords(in []Record) []Record {
	if in == nil {
		return nil
	}
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = cloneRecord(r)
	}
	return out
}

func cloneRecord(in Record) Record {
	if in == nil {
		return nil
	}
	out := make(Record, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = cloneValue(e)
		}
		return out
	case Record:
		return cloneRecord(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	case []Record:
		return cloneRecords(val)
	case json.RawMessage:
		return append(json.RawMessage(nil), val...)
	default:
		return val
	}
}
