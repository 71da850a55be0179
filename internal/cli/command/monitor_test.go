package command

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/docguard/internal/cli/config"
	"github.com/yndnr/docguard/internal/core/domain"
	"github.com/yndnr/docguard/internal/core/integrity"
	"github.com/yndnr/docguard/internal/storage"
	"github.com/yndnr/docguard/internal/storage/backend/memkv"
	"github.com/yndnr/docguard/internal/storage/codec"
	"github.com/yndnr/docguard/internal/telemetry/logger"
	"github.com/yndnr/docguard/internal/telemetry/metric"
)

func newTestMonitor(t *testing.T, cfgPath string) (*monitor, *memkv.Backend, *metric.Registry) {
	t.Helper()
	b := memkv.New()
	reg := metric.NewRegistry()
	s, err := storage.New(storage.Config{
		Backend:        b,
		DebounceWindow: 10 * time.Millisecond,
		Logger:         logger.Discard(),
		Metrics:        reg,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	e := &env{cfgPath: cfgPath, cfg: config.Default(), logger: logger.Discard()}
	return newMonitor(e, s, reg), b, reg
}

func saveFlushed(t *testing.T, s *storage.Store, name string) {
	t.Helper()
	doc := domain.NewDocument()
	doc.Clients = append(doc.Clients, domain.Record{"id": "c1", "name": name})
	require.NoError(t, s.Save(doc))
	require.NoError(t, s.Flush(context.Background()))
}

func scrape(t *testing.T, reg *metric.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMonitor_Check_Healthy(t *testing.T) {
	m, _, reg := newTestMonitor(t, "")
	saveFlushed(t, m.store, "Acme")

	require.NoError(t, m.check(context.Background()))
	assert.Contains(t, scrape(t, reg), `docguard_monitor_integrity_checks_total{result="ok"} 1`)
}

func TestMonitor_Check_FirstRun(t *testing.T) {
	m, _, _ := newTestMonitor(t, "")
	assert.NoError(t, m.check(context.Background()))
}

func TestMonitor_Check_Recovers(t *testing.T) {
	m, b, reg := newTestMonitor(t, "")
	saveFlushed(t, m.store, "first")
	saveFlushed(t, m.store, "second")
	b.SetLive([]byte("{broken"))

	require.NoError(t, m.check(context.Background()))
	require.NoError(t, m.store.Verify(context.Background()))

	out := scrape(t, reg)
	assert.Contains(t, out, `docguard_monitor_integrity_checks_total{result="DG-DOC-4000"} 1`)
	assert.Contains(t, out, `docguard_recovery_runs_total{outcome="restored"} 1`)
}

func TestMonitor_Check_RecoversMissingLive(t *testing.T) {
	m, b, _ := newTestMonitor(t, "")
	doc := domain.NewDocument()
	doc.Clients = append(doc.Clients, domain.Record{"id": "c1", "name": "orphan"})
	fresh, err := integrity.RefreshDigest(doc)
	require.NoError(t, err)
	raw, err := codec.New().Encode(fresh)
	require.NoError(t, err)
	id, err := domain.GenerateBackupID(time.Now(), domain.BackupAuto, nil)
	require.NoError(t, err)
	b.SetBackup(id, raw)

	require.ErrorIs(t, m.store.Verify(context.Background()), domain.ErrLiveMissing)
	require.NoError(t, m.check(context.Background()))
	assert.NoError(t, m.store.Verify(context.Background()))
}

func TestMonitor_Check_Exhausted(t *testing.T) {
	m, b, _ := newTestMonitor(t, "")
	b.SetLive([]byte("{broken"))
	id, err := domain.GenerateBackupID(time.Now(), domain.BackupAuto, nil)
	require.NoError(t, err)
	b.SetBackup(id, []byte("also broken"))

	err = m.check(context.Background())
	assert.ErrorIs(t, err, domain.ErrRecoveryExhausted)
}

func TestMonitor_Reload(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "docguard.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("backup:\n  max_count: 2\n"), 0600))

	m, _, _ := newTestMonitor(t, cfgPath)
	ctx := context.Background()
	saveFlushed(t, m.store, "Acme")
	for i := 0; i < 4; i++ {
		_, err := m.store.CreateBackup(ctx)
		require.NoError(t, err)
	}

	m.reload(ctx)

	assert.Equal(t, 2, m.store.Retention().MaxCount)
	infos, err := m.store.ListBackups(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestMonitor_Reload_AppliesLogLevel(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "docguard.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: warn\n"), 0600))
	logger.SetLevel("info")
	t.Cleanup(func() { logger.SetLevel("info") })

	m, _, _ := newTestMonitor(t, cfgPath)
	m.reload(context.Background())
	assert.Equal(t, "warn", logger.GetLevel())
}

func TestMonitor_Reload_InvalidKeepsSettings(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "docguard.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("backup:\n  max_count: -1\n"), 0600))

	m, _, _ := newTestMonitor(t, cfgPath)
	before := m.store.Retention()

	m.reload(context.Background())
	assert.Equal(t, before, m.store.Retention())
}

func TestMonitor_Reload_Throttled(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "docguard.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("backup:\n  max_count: 5\n"), 0600))

	m, _, _ := newTestMonitor(t, cfgPath)
	ctx := context.Background()

	m.reload(ctx)
	require.Equal(t, 5, m.store.Retention().MaxCount)

	require.NoError(t, os.WriteFile(cfgPath, []byte("backup:\n  max_count: 7\n"), 0600))
	m.reload(ctx)
	assert.Equal(t, 5, m.store.Retention().MaxCount, "second reload within a second should be dropped")
}

func TestMonitorCommand_RecoversAndStops(t *testing.T) {
	dir := t.TempDir()
	importDoc(t, dir, "first")
	importDoc(t, dir, "second")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "document.json"), []byte("{broken"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := runContext(ctx, t, dir, "monitor", "--interval", "20ms", "--metrics-addr", "")
		errCh <- err
	}()

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop after cancel")
	}

	out, err := run(t, dir, "verify")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
}
