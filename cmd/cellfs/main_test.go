package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/marmos91/cellfs/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0x00000000000000000000000000000000000000a1"
	bob   = "0x00000000000000000000000000000000000000b0"
)

// workspace is a config file backed by a private badger directory.
type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
logging:
  level: WARN
store:
  type: badger
  badger:
    db_path: %q
    sync_writes: false
events:
  journal: %q
identity: %q
`, filepath.Join(dir, "cells"), filepath.Join(dir, "events.cbor"), alice)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return workspace{dir: dir, config: path}
}

// cli runs one invocation and returns stdout, stderr and the exit status.
func (w workspace) cli(t *testing.T, stdin string, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config", w.config}, args...)
	code := run(context.Background(), full, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

// ok runs an invocation that must succeed.
func (w workspace) ok(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, code := w.cli(t, "", args...)
	require.Equal(t, 0, code, "cellfs %v: %s", args, errOut)
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestCLI_FileLifecycle(t *testing.T) {
	w := newWorkspace(t)

	ns := decode[map[string]string](t, w.ok(t, "ns", "create"))["namespace"]
	require.NotEmpty(t, ns)

	created := decode[map[string]uint64](t, w.ok(t, "create", ns, "readme", "--data", "hello"))
	assert.Equal(t, uint64(0), created["id"])

	assert.Equal(t, "hello", w.ok(t, "read", ns, "0"))

	w.ok(t, "update", ns, "0", "--offset", "5", "--data", " world")
	assert.Equal(t, "hello world", w.ok(t, "read", ns, "0"))
	assert.Equal(t, "world", w.ok(t, "read", ns, "0", "--offset", "6", "--length", "5"))

	stat := decode[map[string]any](t, w.ok(t, "stat", ns, "0"))
	assert.Equal(t, "readme", stat["name"])
	assert.Equal(t, "file", stat["kind"])
	assert.Equal(t, float64(11), stat["size"])
	assert.Equal(t, alice, stat["owner"])
	assert.NotContains(t, stat, "body")

	get := decode[map[string]any](t, w.ok(t, "get", ns, "0", "--offset", "6"))
	assert.Equal(t, "world", get["body"])

	assert.Equal(t, []uint64{0}, decode[[]uint64](t, w.ok(t, "ls", ns)))
	assert.Equal(t, uint64(1), decode[map[string]uint64](t, w.ok(t, "count", ns))["count"])
	assert.True(t, decode[map[string]bool](t, w.ok(t, "exists", ns, "0"))["exists"])

	cluster := decode[map[string]string](t, w.ok(t, "cluster", ns, "0", "0"))
	assert.True(t, strings.HasPrefix(cluster["cluster"], "0x"+fmt.Sprintf("%x", "hello world")))

	w.ok(t, "rm", ns, "0")
	assert.False(t, decode[map[string]bool](t, w.ok(t, "exists", ns, "0"))["exists"])
	assert.Equal(t, []uint64{}, decode[[]uint64](t, w.ok(t, "ls", ns)))
}

func TestCLI_WriteUpsertsFromStdin(t *testing.T) {
	w := newWorkspace(t)
	ns := decode[map[string]string](t, w.ok(t, "ns", "create"))["namespace"]

	_, errOut, code := w.cli(t, "from stdin", "write", ns, "7", "--file", "-")
	require.Equal(t, 0, code, errOut)

	assert.Equal(t, "from stdin", w.ok(t, "read", ns, "7"))
	stat := decode[map[string]any](t, w.ok(t, "stat", ns, "7"))
	assert.Equal(t, "", stat["name"])
}

func TestCLI_OwnershipIsEnforced(t *testing.T) {
	w := newWorkspace(t)
	ns := decode[map[string]string](t, w.ok(t, "ns", "create"))["namespace"]
	w.ok(t, "create", ns, "mine", "--data", "x")

	_, errOut, code := w.cli(t, "", "--as", bob, "rm", ns, "0")
	assert.Equal(t, 3, code)
	assert.Contains(t, errOut, "belongs to")

	assert.True(t, decode[map[string]bool](t, w.ok(t, "exists", ns, "0"))["exists"])
}

func TestCLI_TreeFollowsDirectories(t *testing.T) {
	w := newWorkspace(t)
	root := decode[map[string]string](t, w.ok(t, "ns", "create"))["namespace"]
	child := decode[map[string]string](t, w.ok(t, "ns", "create"))["namespace"]

	w.ok(t, "mkdir", root, "docs", child)
	w.ok(t, "create", child, "guide", "--data", "abc")
	w.ok(t, "mkdir", child, "up", root)

	tree := w.ok(t, "tree", root)
	assert.Contains(t, tree, "0 docs/ -> "+child)
	assert.Contains(t, tree, "0 guide (3 bytes)")
	assert.Contains(t, tree, "1 up/ -> "+root+" [cycle]")

	refs := decode[[]string](t, w.ok(t, "ns", "list"))
	assert.ElementsMatch(t, []string{root, child}, refs)
}

func TestCLI_DropNamespace(t *testing.T) {
	w := newWorkspace(t)
	ns := decode[map[string]string](t, w.ok(t, "ns", "create"))["namespace"]
	w.ok(t, "create", ns, "f", "--data", "x")

	_, _, code := w.cli(t, "", "ns", "drop", ns)
	assert.Equal(t, 3, code)

	w.ok(t, "rm", ns, "0")
	w.ok(t, "ns", "drop", ns)
	assert.Equal(t, []string{}, decode[[]string](t, w.ok(t, "ns", "list")))
}

func TestCLI_JournalRecordsMutations(t *testing.T) {
	w := newWorkspace(t)
	ns := decode[map[string]string](t, w.ok(t, "ns", "create"))["namespace"]
	w.ok(t, "create", ns, "a", "--data", "1")
	w.ok(t, "rm", ns, "0")

	lines := strings.Split(strings.TrimSpace(w.ok(t, "journal")), "\n")
	require.Len(t, lines, 3)

	var kinds []string
	for _, line := range lines {
		ev := decode[map[string]any](t, line)
		kinds = append(kinds, ev["kind"].(string))
		assert.Equal(t, ns, ev["namespace"])
	}
	assert.Equal(t, []string{"namespace_created", "file_created", "entry_deleted"}, kinds)
}

func TestCLI_DumpRestore(t *testing.T) {
	src := newWorkspace(t)
	ns := decode[map[string]string](t, src.ok(t, "ns", "create"))["namespace"]
	src.ok(t, "create", ns, "keep", "--data", "persisted")

	snap := filepath.Join(t.TempDir(), "cells.snap")
	stats := decode[map[string]uint64](t, src.ok(t, "dump", snap))
	assert.NotZero(t, stats["cells"])

	dst := newWorkspace(t)
	restored := decode[map[string]uint64](t, dst.ok(t, "restore", snap))
	assert.Equal(t, stats, restored)
	assert.Equal(t, "persisted", dst.ok(t, "read", ns, "0"))

	// The destination is no longer empty.
	_, _, code := dst.cli(t, "", "restore", snap)
	assert.Equal(t, 1, code)
}

func TestCLI_Init(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cellfs", "config.yaml")
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"--config", path, "init"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), path)

	code = run(context.Background(), []string{"--config", path, "init"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "already exists")
}

func TestCLI_UsageErrors(t *testing.T) {
	w := newWorkspace(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"frobnicate"}},
		{"missing args", []string{"read"}},
		{"bad namespace", []string{"count", "not-a-uuid"}},
		{"bad id", []string{"stat", "00000000-0000-0000-0000-000000000001", "x"}},
		{"conflicting body", []string{"create", "00000000-0000-0000-0000-000000000001", "n", "--data", "a", "--file", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, code := w.cli(t, "", tt.args...)
			assert.Equal(t, 2, code)
		})
	}
}

func TestCLI_UnknownNamespace(t *testing.T) {
	w := newWorkspace(t)
	_, errOut, code := w.cli(t, "", "count", "00000000-0000-0000-0000-000000000001")
	assert.Equal(t, 3, code)
	assert.Contains(t, errOut, "not registered")
}

func TestReloadHost_AppliesRateLimit(t *testing.T) {
	w := newWorkspace(t)
	ctx := context.Background()

	cfg, err := config.Load(w.config)
	require.NoError(t, err)
	rt, err := config.CreateHost(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = rt.Close() }()

	e := &env{ctx: ctx, configPath: w.config, cfg: cfg, rt: rt}
	assert.False(t, rt.Host.RateLimited())

	data, err := os.ReadFile(w.config)
	require.NoError(t, err)
	limited := string(data) + "host:\n  rate_limit: 5\n  rate_burst: 1\n"
	require.NoError(t, os.WriteFile(w.config, []byte(limited), 0o644))

	require.NoError(t, reloadHost(e))
	assert.True(t, rt.Host.RateLimited())
	assert.Equal(t, 5.0, e.cfg.Host.RateLimit)

	require.NoError(t, os.WriteFile(w.config, data, 0o644))
	require.NoError(t, reloadHost(e))
	assert.False(t, rt.Host.RateLimited())
}

func TestCLI_ExplicitIDsCoverFullRange(t *testing.T) {
	w := newWorkspace(t)
	ns := decode[map[string]string](t, w.ok(t, "ns", "create"))["namespace"]
	other := decode[map[string]string](t, w.ok(t, "ns", "create"))["namespace"]

	const top = "18446744073709551615"
	created := decode[map[string]uint64](t, w.ok(t, "create", ns, "last", "--id", top, "--data", "x"))
	assert.Equal(t, uint64(1<<64-1), created["id"])

	dir := decode[map[string]uint64](t, w.ok(t, "mkdir", ns, "high", other, "--id", "9223372036854775808"))
	assert.Equal(t, uint64(1<<63), dir["id"])

	// An explicit zero is an id, not a request to allocate.
	zero := decode[map[string]uint64](t, w.ok(t, "create", ns, "first", "--id", "0"))
	assert.Equal(t, uint64(0), zero["id"])

	body := w.ok(t, "read", ns, top)
	assert.Equal(t, "x", body)

	count := decode[map[string]uint64](t, w.ok(t, "count", ns))
	assert.Equal(t, uint64(3), count["count"])
}

func TestCLI_Truncate(t *testing.T) {
	w := newWorkspace(t)
	ns := decode[map[string]string](t, w.ok(t, "ns", "create"))["namespace"]
	w.ok(t, "create", ns, "notes", "--data", "hello world")

	w.ok(t, "truncate", ns, "0", "--size", "5")
	assert.Equal(t, "hello", w.ok(t, "read", ns, "0"))

	w.ok(t, "truncate", ns, "0", "--size", "8")
	assert.Equal(t, "hello\x00\x00\x00", w.ok(t, "read", ns, "0"))

	w.ok(t, "truncate", ns, "0", "--size", "0")
	stat := decode[map[string]any](t, w.ok(t, "stat", ns, "0"))
	assert.Equal(t, float64(0), stat["size"])

	_, errOut, code := w.cli(t, "", "truncate", ns, "9", "--size", "1")
	assert.Equal(t, 3, code, errOut)
}
