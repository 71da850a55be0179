// Package memkv provides an in-memory document backend.
//
// It is used by tests throughout the storage packages and supports fault
// injection: any primitive can be made to fail, and the bytes passing through
// a primitive can be rewritten to simulate torn or corrupted writes.
package memkv

import (
	"context"
	"sort"
	"sync"

	"github.com/yndnr/docguard/internal/storage/backend"
)

// Op names a backend primitive for fault injection.
type Op string

const (
	OpReadLive       Op = "read_live"
	OpWriteStaging   Op = "write_staging"
	OpReadStaging    Op = "read_staging"
	OpDiscardStaging Op = "discard_staging"
	OpPromote        Op = "promote"
	OpPutBackup      Op = "put_backup"
	OpGetBackup      Op = "get_backup"
	OpDeleteBackup   Op = "delete_backup"
	OpListBackups    Op = "list_backups"
	OpClear          Op = "clear"
)

// MangleFunc rewrites the bytes flowing through a primitive.
type MangleFunc func(data []byte) []byte

// Backend is an in-memory backend.Backend.
type Backend struct {
	mu sync.RWMutex

	live       []byte
	hasLive    bool
	staging    []byte
	hasStaging bool
	backups    map[string][]byte

	faults  map[Op]error
	mangles map[Op]MangleFunc
	calls   map[Op]int
	closed  bool
}

var _ backend.Backend = (*Backend)(nil)

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		backups: make(map[string][]byte),
		faults:  make(map[Op]error),
		mangles: make(map[Op]MangleFunc),
		calls:   make(map[Op]int),
	}
}

// FailOn makes op return err until cleared with FailOn(op, nil).
func (b *Backend) FailOn(op Op, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.faults, op)
		return
	}
	b.faults[op] = err
}

// Mangle installs fn on op. For writes it rewrites the stored bytes, for
// reads the returned bytes. A nil fn removes the hook.
func (b *Backend) Mangle(op Op, fn MangleFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		delete(b.mangles, op)
		return
	}
	b.mangles[op] = fn
}

// Calls returns how many times op was invoked.
func (b *Backend) Calls(op Op) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.calls[op]
}

// SetLive overwrites the live slot directly, bypassing staging.
func (b *Backend) SetLive(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.live = clone(data)
	b.hasLive = true
}

// SetBackup stores a backup directly.
func (b *Backend) SetBackup(id string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backups[id] = clone(data)
}

// HasStaging reports whether the staging slot is occupied.
func (b *Backend) HasStaging() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hasStaging
}

func (b *Backend) Name() string { return "memory" }

// enter records a call and returns the injected fault, if any. Callers hold mu.
func (b *Backend) enter(op Op) error {
	b.calls[op]++
	if b.closed {
		return backend.ErrClosed
	}
	return b.faults[op]
}

func (b *Backend) mangle(op Op, data []byte) []byte {
	if fn, ok := b.mangles[op]; ok {
		return fn(data)
	}
	return data
}

func (b *Backend) ReadLive(_ context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpReadLive); err != nil {
		return nil, err
	}
	if !b.hasLive {
		return nil, backend.ErrNotFound
	}
	return b.mangle(OpReadLive, clone(b.live)), nil
}

func (b *Backend) WriteStaging(_ context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpWriteStaging); err != nil {
		return err
	}
	b.staging = b.mangle(OpWriteStaging, clone(data))
	b.hasStaging = true
	return nil
}

func (b *Backend) ReadStaging(_ context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpReadStaging); err != nil {
		return nil, err
	}
	if !b.hasStaging {
		return nil, backend.ErrNotFound
	}
	return b.mangle(OpReadStaging, clone(b.staging)), nil
}

func (b *Backend) DiscardStaging(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpDiscardStaging); err != nil {
		return err
	}
	b.staging = nil
	b.hasStaging = false
	return nil
}

func (b *Backend) Promote(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpPromote); err != nil {
		return err
	}
	if !b.hasStaging {
		return backend.ErrNotFound
	}
	b.live = b.mangle(OpPromote, b.staging)
	b.hasLive = true
	b.staging = nil
	b.hasStaging = false
	return nil
}

func (b *Backend) PutBackup(_ context.Context, id string, data []byte) error {
	if err := backend.CheckID(id); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpPutBackup); err != nil {
		return err
	}
	b.backups[id] = b.mangle(OpPutBackup, clone(data))
	return nil
}

func (b *Backend) GetBackup(_ context.Context, id string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpGetBackup); err != nil {
		return nil, err
	}
	data, ok := b.backups[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return b.mangle(OpGetBackup, clone(data)), nil
}

func (b *Backend) DeleteBackup(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpDeleteBackup); err != nil {
		return err
	}
	if _, ok := b.backups[id]; !ok {
		return backend.ErrNotFound
	}
	delete(b.backups, id)
	return nil
}

func (b *Backend) ListBackups(_ context.Context) ([]backend.BackupEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpListBackups); err != nil {
		return nil, err
	}
	entries := make([]backend.BackupEntry, 0, len(b.backups))
	for id, data := range b.backups {
		entries = append(entries, backend.BackupEntry{ID: id, Size: int64(len(data))})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (b *Backend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpClear); err != nil {
		return err
	}
	b.live, b.hasLive = nil, false
	b.staging, b.hasStaging = nil, false
	b.backups = make(map[string][]byte)
	return nil
}

func (b *Backend) Size(_ context.Context) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, backend.ErrClosed
	}
	total := int64(len(b.live))
	for _, data := range b.backups {
		total += int64(len(data))
	}
	return total, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func clone(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
