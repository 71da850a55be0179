package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewDocument(t *testing.T) {
	d := NewDocument()

	if d.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", d.Version, CurrentVersion)
	}
	if d.Clients == nil || d.Projects == nil || d.Tasks == nil {
		t.Error("collections must be non-nil")
	}
	if d.Config == nil {
		t.Error("Config must be non-nil")
	}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"version":1,"clients":[],"projects":[],"tasks":[],"config":{},"metadata":{"checksum":""}}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}

func TestDocument_CloneIsDeep(t *testing.T) {
	d := NewDocument()
	d.Tasks = append(d.Tasks, Record{
		"id":   "t1",
		"tags": []any{"a", "b"},
		"meta": map[string]any{"owner": "x"},
	})
	d.Config["theme"] = "dark"
	d.Metadata.Checksum = "abc"

	c := d.Clone()
	c.Tasks[0]["id"] = "changed"
	c.Tasks[0]["tags"].([]any)[0] = "z"
	c.Tasks[0]["meta"].(map[string]any)["owner"] = "y"
	c.Config["theme"] = "light"
	c.Metadata.Checksum = "def"

	if d.Tasks[0]["id"] != "t1" {
		t.Error("Clone shares record maps")
	}
	if d.Tasks[0]["tags"].([]any)[0] != "a" {
		t.Error("Clone shares nested slices")
	}
	if d.Tasks[0]["meta"].(map[string]any)["owner"] != "x" {
		t.Error("Clone shares nested maps")
	}
	if d.Config["theme"] != "dark" {
		t.Error("Clone shares config")
	}
	if d.Metadata.Checksum != "abc" {
		t.Error("Clone shares metadata")
	}
}

func TestDocument_CloneNil(t *testing.T) {
	var d *Document
	if d.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
	if d.RecordCount() != 0 {
		t.Error("RecordCount of nil should be 0")
	}
}

func TestDocument_WithoutChecksum(t *testing.T) {
	d := NewDocument()
	d.Metadata.Checksum = "abc"
	d.Metadata.LastSync = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	c := d.WithoutChecksum()
	if c.Metadata.Checksum != "" {
		t.Errorf("Checksum = %q, want empty", c.Metadata.Checksum)
	}
	if !c.Metadata.LastSync.Equal(d.Metadata.LastSync) {
		t.Error("WithoutChecksum should keep other metadata")
	}
	if d.Metadata.Checksum != "abc" {
		t.Error("WithoutChecksum must not mutate the receiver")
	}
}

func TestDocument_RecordCount(t *testing.T) {
	d := NewDocument()
	d.Clients = append(d.Clients, Record{"id": "c1"})
	d.Projects = append(d.Projects, Record{"id": "p1"}, Record{"id": "p2"})
	d.Tasks = append(d.Tasks, Record{"id": "t1"})

	if got := d.RecordCount(); got != 4 {
		t.Errorf("RecordCount() = %d, want 4", got)
	}
}
