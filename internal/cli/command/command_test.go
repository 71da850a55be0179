package command

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/yndnr/docguard/internal/core/domain"
	"github.com/yndnr/docguard/internal/telemetry/logger"
)

// run executes the CLI against dir with the fs backend and returns stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	return runContext(context.Background(), t, dir, args...)
}

func runContext(ctx context.Context, t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	app := App()
	var stdout, stderr bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}

	argv := append([]string{"docguard", "--backend", "fs", "--data-dir", dir}, args...)
	err := app.RunContext(ctx, argv)
	return stdout.String(), err
}

func writeDocFile(t *testing.T, clients ...string) string {
	t.Helper()
	doc := domain.NewDocument()
	for i, name := range clients {
		doc.Clients = append(doc.Clients, domain.Record{"id": i + 1, "name": name})
	}
	doc.Tasks = append(doc.Tasks, domain.Record{"id": "t1", "title": "invoice", "hours": 2.5})
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "import.json")
	require.NoError(t, os.WriteFile(path, raw, 0600))
	return path
}

func importDoc(t *testing.T, dir string, clients ...string) {
	t.Helper()
	_, err := run(t, dir, "import", writeDocFile(t, clients...))
	require.NoError(t, err)
}

func TestApp_Commands(t *testing.T) {
	app := App()
	names := make(map[string]bool)
	for _, cmd := range app.Commands {
		names[cmd.Name] = true
	}
	for _, want := range []string{"show", "import", "export", "verify", "size", "clear", "backup", "monitor", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestShow_FirstRun(t *testing.T) {
	out, err := run(t, t.TempDir(), "show")
	require.NoError(t, err)
	assert.Equal(t, "no document stored\n", out)
}

func TestImportShow(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "import", writeDocFile(t, "Acme", "Globex"))
	require.NoError(t, err)
	assert.Equal(t, "imported 3 records\n", out)

	out, err = run(t, dir, "--output", "json", "show")
	require.NoError(t, err)

	var summary DocumentSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 2, summary.Clients)
	assert.Equal(t, 1, summary.Tasks)
	assert.Equal(t, "fs", summary.Backend)
	assert.Len(t, summary.Checksum, 64)
	assert.False(t, summary.LastSync.IsZero())
}

func TestImport_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"clients":{}}`), 0600))

	_, err := run(t, t.TempDir(), "import", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStructural)
}

func TestImport_MissingArgument(t *testing.T) {
	_, err := run(t, t.TempDir(), "import")
	assert.ErrorContains(t, err, "FILE")
}

func TestImport_Stdin(t *testing.T) {
	dir := t.TempDir()
	raw, err := os.ReadFile(writeDocFile(t, "Initech"))
	require.NoError(t, err)

	app := App()
	var stdout bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &bytes.Buffer{}
	app.Reader = bytes.NewReader(raw)
	require.NoError(t, app.Run([]string{"docguard", "--data-dir", dir, "import", "-"}))
	assert.Equal(t, "imported 2 records\n", stdout.String())
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	importDoc(t, dir, "Acme")

	out, err := run(t, dir, "export")
	require.NoError(t, err)
	var doc domain.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Clients, 1)
	assert.Equal(t, "Acme", doc.Clients[0]["name"])

	target := filepath.Join(t.TempDir(), "out.json")
	_, err = run(t, dir, "export", target)
	require.NoError(t, err)
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestExport_FirstRun(t *testing.T) {
	_, err := run(t, t.TempDir(), "export")
	assert.ErrorIs(t, err, domain.ErrNoDocument)
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "verify")
	require.NoError(t, err)
	assert.Equal(t, "no document stored\n", out)

	importDoc(t, dir, "Acme")
	out, err = run(t, dir, "verify")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
}

func TestVerify_RepairsCorruptLive(t *testing.T) {
	dir := t.TempDir()
	importDoc(t, dir, "first")
	importDoc(t, dir, "second")

	live := filepath.Join(dir, "document.json")
	require.NoError(t, os.WriteFile(live, []byte("{broken"), 0600))

	_, err := run(t, dir, "verify")
	assert.ErrorIs(t, err, domain.ErrStructural)

	out, err := run(t, dir, "verify", "--repair")
	require.NoError(t, err)
	assert.Equal(t, "repaired\n", out)

	out, err = run(t, dir, "verify")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
}

func TestSize(t *testing.T) {
	dir := t.TempDir()
	importDoc(t, dir, "Acme")

	out, err := run(t, dir, "-o", "yaml", "size")
	require.NoError(t, err)

	var report SizeReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Positive(t, report.Bytes)
	assert.Equal(t, 0, report.Backups)
	assert.Contains(t, report.Human, "B")
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	importDoc(t, dir, "Acme")

	_, err := run(t, dir, "clear")
	assert.ErrorContains(t, err, "--yes")

	out, err := run(t, dir, "clear", "--yes")
	require.NoError(t, err)
	assert.Equal(t, "cleared\n", out)

	out, err = run(t, dir, "show")
	require.NoError(t, err)
	assert.Equal(t, "no document stored\n", out)
}

func TestBackupCreateListRestore(t *testing.T) {
	dir := t.TempDir()
	importDoc(t, dir, "first")

	out, err := run(t, dir, "backup", "create")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	assert.True(t, strings.HasSuffix(id, "-manual"), "id = %q", id)

	importDoc(t, dir, "second")

	out, err = run(t, dir, "-o", "json", "backup", "list")
	require.NoError(t, err)
	var rows []BackupRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, id, rows[0].ID)
	assert.Equal(t, "auto", rows[1].Kind)

	out, err = run(t, dir, "backup", "restore", id)
	require.NoError(t, err)
	assert.Equal(t, "restored "+id+"\n", out)

	out, err = run(t, dir, "export")
	require.NoError(t, err)
	assert.Contains(t, out, `"first"`)
	assert.NotContains(t, out, `"second"`)
}

func TestBackupList_Table(t *testing.T) {
	dir := t.TempDir()
	importDoc(t, dir, "first")
	_, err := run(t, dir, "backup", "create")
	require.NoError(t, err)

	out, err := run(t, dir, "backup", "ls")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[0], "CHECKSUM")
}

func TestBackupRestore_Errors(t *testing.T) {
	dir := t.TempDir()
	importDoc(t, dir, "first")

	_, err := run(t, dir, "backup", "restore")
	assert.ErrorContains(t, err, "BACKUP_ID")

	_, err = run(t, dir, "backup", "restore", "01jabcdefghjkmnpqrstvwxyz0-manual")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBackupCreate_FirstRun(t *testing.T) {
	_, err := run(t, t.TempDir(), "backup", "create")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBackendFlag(t *testing.T) {
	dir := t.TempDir()
	app := App()
	var stdout bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &bytes.Buffer{}

	require.NoError(t, app.Run([]string{"docguard", "--backend", "sqlite", "--data-dir", dir, "import", writeDocFile(t, "Acme")}))
	_, err := os.Stat(filepath.Join(dir, "docguard.db"))
	assert.NoError(t, err)
}

func TestConfigFile(t *testing.T) {
	dataDir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "docguard.yaml")
	content := "storage:\n  backend: badger\n  data_dir: " + dataDir + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0600))

	app := App()
	var stdout bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &bytes.Buffer{}
	require.NoError(t, app.Run([]string{"docguard", "--config", cfgPath, "-o", "json", "show"}))
	assert.Equal(t, "no document stored\n", stdout.String())

	_, err := os.Stat(filepath.Join(dataDir, "badger"))
	assert.NoError(t, err)
}

func TestInvalidOutputFormat(t *testing.T) {
	_, err := run(t, t.TempDir(), "-o", "xml", "show")
	assert.ErrorContains(t, err, "output format")
}

func TestVersion(t *testing.T) {
	out, err := run(t, t.TempDir(), "-o", "json", "version")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])
}

func TestVerboseLogging(t *testing.T) {
	dir := t.TempDir()
	app := App()
	var stderr bytes.Buffer
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &stderr
	t.Cleanup(func() { logger.SetLevel("info") })

	require.NoError(t, app.Run([]string{"docguard", "--data-dir", dir, "--verbose", "show"}))
	assert.Contains(t, stderr.String(), "configuration loaded")
	assert.Contains(t, stderr.String(), `"op":"show"`)
}
