package domain

import (
	"crypto/rand"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestGenerateBackupID(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	id, err := GenerateBackupID(ts, BackupAuto, rand.Reader)
	if err != nil {
		t.Fatalf("GenerateBackupID: %v", err)
	}
	if !strings.HasSuffix(id, "-auto") {
		t.Errorf("id %q should end with -auto", id)
	}
	if id != strings.ToLower(id) {
		t.Errorf("id %q should be lowercase", id)
	}

	gotTS, kind, err := ParseBackupID(id)
	if err != nil {
		t.Fatalf("ParseBackupID: %v", err)
	}
	if !gotTS.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", gotTS, ts)
	}
	if kind != BackupAuto {
		t.Errorf("kind = %q, want %q", kind, BackupAuto)
	}
}

func TestGenerateBackupID_InvalidKind(t *testing.T) {
	if _, err := GenerateBackupID(time.Now(), BackupKind("weekly"), rand.Reader); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestBackupID_LexicographicIsChronological(t *testing.T) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 20; i++ {
		// Mix kinds and reuse the same millisecond to exercise monotonic entropy.
		kind := BackupAuto
		if i%3 == 0 {
			kind = BackupManual
		}
		ts := base.Add(time.Duration(i/2) * time.Millisecond)
		id, err := GenerateBackupID(ts, kind, entropy)
		if err != nil {
			t.Fatalf("GenerateBackupID: %v", err)
		}
		ids = append(ids, id)
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for i := range ids {
		if ids[i] != sorted[i] {
			t.Fatalf("ids not lexicographically ordered at %d: %q vs %q", i, ids[i], sorted[i])
		}
	}
}

func TestParseBackupID_Malformed(t *testing.T) {
	cases := []string{
		"",
		"short-auto",
		"01hzzzzzzzzzzzzzzzzzzzzzzz",
		"01hzzzzzzzzzzzzzzzzzzzzzzzauto",
		"01hq3v5d0000000000000000000-weekly",
		"../../etc/passwd-auto-xxxxxxxxxxxxxxxxxx",
		"01HQ3V5D00000000000000000!-auto",
	}
	for _, id := range cases {
		if IsValidBackupID(id) {
			t.Errorf("IsValidBackupID(%q) = true, want false", id)
		}
	}
}
