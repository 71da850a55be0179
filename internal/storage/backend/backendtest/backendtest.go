// Package backendtest is a conformance suite run against every
// backend.Backend implementation.
package backendtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/yndnr/docguard/internal/storage/backend"
)

// Factory opens a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) backend.Backend

// Run executes the conformance suite.
func Run(t *testing.T, open Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, b backend.Backend)
	}{
		{"EmptyReads", testEmptyReads},
		{"StagePromote", testStagePromote},
		{"PromoteReplacesLive", testPromoteReplacesLive},
		{"DiscardStaging", testDiscardStaging},
		{"BinarySafe", testBinarySafe},
		{"Backups", testBackups},
		{"InvalidBackupID", testInvalidBackupID},
		{"Size", testSize},
		{"Clear", testClear},
		{"ConcurrentReadsDuringPromote", testConcurrentReads},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := open(t)
			defer b.Close()
			tc.fn(t, b)
		})
	}

	t.Run("Closed", func(t *testing.T) {
		b := open(t)
		if err := b.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if _, err := b.ReadLive(context.Background()); !errors.Is(err, backend.ErrClosed) {
			t.Errorf("ReadLive() after Close error = %v, want ErrClosed", err)
		}
		if err := b.WriteStaging(context.Background(), []byte("x")); !errors.Is(err, backend.ErrClosed) {
			t.Errorf("WriteStaging() after Close error = %v, want ErrClosed", err)
		}
	})
}

func testEmptyReads(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	if _, err := b.ReadLive(ctx); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("ReadLive() error = %v, want ErrNotFound", err)
	}
	if _, err := b.ReadStaging(ctx); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("ReadStaging() error = %v, want ErrNotFound", err)
	}
	if err := b.Promote(ctx); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Promote() error = %v, want ErrNotFound", err)
	}
	if _, err := b.GetBackup(ctx, "missing"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("GetBackup() error = %v, want ErrNotFound", err)
	}
	if err := b.DeleteBackup(ctx, "missing"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("DeleteBackup() error = %v, want ErrNotFound", err)
	}
	entries, err := b.ListBackups(ctx)
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("ListBackups() = %v, want empty", entries)
	}
	if err := b.DiscardStaging(ctx); err != nil {
		t.Errorf("DiscardStaging() on empty error = %v", err)
	}
}

func testStagePromote(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	data := []byte(`{"version":1}`)

	if err := b.WriteStaging(ctx, data); err != nil {
		t.Fatalf("WriteStaging() error = %v", err)
	}
	got, err := b.ReadStaging(ctx)
	if err != nil {
		t.Fatalf("ReadStaging() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadStaging() = %q, want %q", got, data)
	}
	if _, err := b.ReadLive(ctx); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("ReadLive() before Promote error = %v, want ErrNotFound", err)
	}

	if err := b.Promote(ctx); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	live, err := b.ReadLive(ctx)
	if err != nil {
		t.Fatalf("ReadLive() error = %v", err)
	}
	if !bytes.Equal(live, data) {
		t.Errorf("ReadLive() = %q, want %q", live, data)
	}
	if _, err := b.ReadStaging(ctx); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("ReadStaging() after Promote error = %v, want ErrNotFound", err)
	}
}

func testPromoteReplacesLive(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	stageAndPromote(t, b, []byte("first"))
	stageAndPromote(t, b, []byte("second, longer than the first"))
	stageAndPromote(t, b, []byte("third"))

	live, err := b.ReadLive(ctx)
	if err != nil {
		t.Fatalf("ReadLive() error = %v", err)
	}
	if string(live) != "third" {
		t.Errorf("ReadLive() = %q, want %q", live, "third")
	}
}

func testDiscardStaging(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	stageAndPromote(t, b, []byte("live"))

	if err := b.WriteStaging(ctx, []byte("pending")); err != nil {
		t.Fatalf("WriteStaging() error = %v", err)
	}
	if err := b.DiscardStaging(ctx); err != nil {
		t.Fatalf("DiscardStaging() error = %v", err)
	}
	if err := b.DiscardStaging(ctx); err != nil {
		t.Fatalf("DiscardStaging() twice error = %v", err)
	}
	if _, err := b.ReadStaging(ctx); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("ReadStaging() error = %v, want ErrNotFound", err)
	}
	live, err := b.ReadLive(ctx)
	if err != nil || string(live) != "live" {
		t.Errorf("ReadLive() = %q, %v; want %q", live, err, "live")
	}
}

func testBinarySafe(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	data := []byte{0x00, 0xff, 0x10, 0x00, 'D', 'G', 0x7f}

	stageAndPromote(t, b, data)
	live, err := b.ReadLive(ctx)
	if err != nil {
		t.Fatalf("ReadLive() error = %v", err)
	}
	if !bytes.Equal(live, data) {
		t.Errorf("ReadLive() = %x, want %x", live, data)
	}

	if err := b.PutBackup(ctx, "bin", data); err != nil {
		t.Fatalf("PutBackup() error = %v", err)
	}
	got, err := b.GetBackup(ctx, "bin")
	if err != nil {
		t.Fatalf("GetBackup() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("GetBackup() = %x, want %x", got, data)
	}
}

func testBackups(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	ids := []string{"0003-auto", "0001-manual", "0002-auto"}
	for _, id := range ids {
		if err := b.PutBackup(ctx, id, []byte("body-"+id)); err != nil {
			t.Fatalf("PutBackup(%s) error = %v", id, err)
		}
	}

	entries, err := b.ListBackups(ctx)
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	want := []string{"0001-manual", "0002-auto", "0003-auto"}
	if len(entries) != len(want) {
		t.Fatalf("ListBackups() len = %d, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.ID != want[i] {
			t.Errorf("entries[%d].ID = %s, want %s", i, e.ID, want[i])
		}
		if e.Size != int64(len("body-"+e.ID)) {
			t.Errorf("entries[%d].Size = %d, want %d", i, e.Size, len("body-"+e.ID))
		}
	}

	got, err := b.GetBackup(ctx, "0002-auto")
	if err != nil || string(got) != "body-0002-auto" {
		t.Errorf("GetBackup() = %q, %v", got, err)
	}

	if err := b.DeleteBackup(ctx, "0002-auto"); err != nil {
		t.Fatalf("DeleteBackup() error = %v", err)
	}
	if _, err := b.GetBackup(ctx, "0002-auto"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("GetBackup() after delete error = %v, want ErrNotFound", err)
	}
	entries, _ = b.ListBackups(ctx)
	if len(entries) != 2 {
		t.Errorf("ListBackups() after delete len = %d, want 2", len(entries))
	}
}

func testInvalidBackupID(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	for _, id := range []string{"", "../escape", "a/b", "UPPER"} {
		if err := b.PutBackup(ctx, id, []byte("x")); !errors.Is(err, backend.ErrInvalidID) {
			t.Errorf("PutBackup(%q) error = %v, want ErrInvalidID", id, err)
		}
	}
}

func testSize(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	size, err := b.Size(ctx)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != 0 {
		t.Errorf("Size() on empty = %d, want 0", size)
	}

	stageAndPromote(t, b, make([]byte, 100))
	if err := b.PutBackup(ctx, "b1", make([]byte, 40)); err != nil {
		t.Fatalf("PutBackup() error = %v", err)
	}
	size, err = b.Size(ctx)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != 140 {
		t.Errorf("Size() = %d, want 140", size)
	}
}

func testClear(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	stageAndPromote(t, b, []byte("live"))
	if err := b.WriteStaging(ctx, []byte("staged")); err != nil {
		t.Fatalf("WriteStaging() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := b.PutBackup(ctx, fmt.Sprintf("b%d", i), []byte("x")); err != nil {
			t.Fatalf("PutBackup() error = %v", err)
		}
	}

	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if _, err := b.ReadLive(ctx); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("ReadLive() after Clear error = %v, want ErrNotFound", err)
	}
	if _, err := b.ReadStaging(ctx); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("ReadStaging() after Clear error = %v, want ErrNotFound", err)
	}
	entries, err := b.ListBackups(ctx)
	if err != nil || len(entries) != 0 {
		t.Errorf("ListBackups() after Clear = %v, %v", entries, err)
	}
	if size, _ := b.Size(ctx); size != 0 {
		t.Errorf("Size() after Clear = %d, want 0", size)
	}

	// The backend stays usable.
	stageAndPromote(t, b, []byte("again"))
}

func testConcurrentReads(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	old := bytes.Repeat([]byte("a"), 4096)
	next := bytes.Repeat([]byte("b"), 8192)
	stageAndPromote(t, b, old)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			live, err := b.ReadLive(ctx)
			if err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
			if !bytes.Equal(live, old) && !bytes.Equal(live, next) {
				select {
				case errCh <- fmt.Errorf("torn read: %d bytes", len(live)):
				default:
				}
				return
			}
		}
	}()

	for i := 0; i < 20; i++ {
		data := old
		if i%2 == 0 {
			data = next
		}
		stageAndPromote(t, b, data)
	}
	close(stop)
	wg.Wait()

	select {
	case err := <-errCh:
		t.Fatalf("concurrent ReadLive() error = %v", err)
	default:
	}
}

func stageAndPromote(t *testing.T, b backend.Backend, data []byte) {
	t.Helper()
	ctx := context.Background()
	if err := b.WriteStaging(ctx, data); err != nil {
		t.Fatalf("WriteStaging() error = %v", err)
	}
	if err := b.Promote(ctx); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
}
