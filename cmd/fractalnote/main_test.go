package main

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fractalnote/internal/config"
	"fractalnote/internal/domain"
	"fractalnote/internal/store"
)

type cli struct {
	t       *testing.T
	cfgPath string
	root    string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Store.Root = filepath.Join(dir, "stores")
	cfg.Store.LockTimeout = config.Duration(500 * time.Millisecond)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.Save(cfgPath))
	return &cli{t: t, cfgPath: cfgPath, root: cfg.Store.Root}
}

// run executes one command line and returns stdout, stderr and the error
func (c *cli) run(stdin string, args ...string) (string, string, error) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(append([]string{"--config", c.cfgPath}, args...))
	err := cmd.ExecuteContext(c.t.Context())
	return out.String(), errOut.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, stderr, err := c.run("", args...)
	require.NoError(c.t, err, "stderr: %s", stderr)
	return out
}

func (c *cli) token() string {
	c.t.Helper()
	return strings.TrimSpace(c.mustRun("token"))
}

func TestInitAndTree(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("init", "Home")
	require.Contains(t, out, "id 1\n")
	require.Contains(t, out, "token ")

	_, stderr, err := c.run("", "init", "Other")
	require.NoError(t, err)
	require.Contains(t, stderr, "already initialised")

	out = c.mustRun("tree")
	require.Equal(t, fmt.Sprintf("# token %s\n1 Home\n", c.token()), out)
}

func TestNodeLifecycle(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init", "Home")

	out := c.mustRun("create", "Kitchen", "-p", "1", "-c", "buy bread")
	require.Contains(t, out, "id 2\n")
	c.mustRun("create", "Garden", "-p", "1", "--seq", "1")

	c.mustRun("update", "2", "--title", "Pantry")
	show := c.mustRun("show", "2")
	require.Contains(t, show, "title: Pantry")
	require.Contains(t, show, "body: buy bread")
	require.Contains(t, show, "level: 1")

	c.mustRun("move", "3", "-p", "2")
	require.Contains(t, c.mustRun("show", "3"), "level: 2")
	require.Contains(t, c.mustRun("tree"), "1 Home\n  2 Pantry\n    3 Garden\n")

	c.mustRun("delete", "2")
	_, _, err := c.run("", "show", "3")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Equal(t, exitNotFound, ExitCode(err))
}

func TestStaleTokenIsRefused(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	stale := c.token()

	c.mustRun("create", "first", "-p", "1", "-t", stale)

	_, _, err := c.run("", "create", "second", "-p", "1", "-t", stale)
	var ce *domain.ConflictError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, "second", ce.Title)
	require.Equal(t, exitConflict, ExitCode(err))

	_, _, err = c.run("", "update", "2", "--title", "renamed", "-t", stale)
	require.True(t, errors.As(err, &ce))
	require.Equal(t, "first", ce.Title)
}

func TestContentFromStdin(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")

	_, _, err := c.run("line one\nline two\n", "create", "piped", "-p", "1", "--content-file", "-")
	require.NoError(t, err)
	require.Contains(t, c.mustRun("show", "2"), "line two")

	_, _, err = c.run("", "update", "2", "-c", "x", "--content-file", "-")
	require.Equal(t, exitInvalid, ExitCode(err))
}

func TestRichNodeIsNotEditable(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("create", "fancy", "-p", "1", "--rich")

	_, _, err := c.run("", "update", "2", "-c", "raw")
	require.ErrorIs(t, err, domain.ErrNotEditable)
	require.Equal(t, exitNotEditable, ExitCode(err))

	// Titles stay editable on rich nodes
	_, _, err = c.run("", "update", "2", "--title", "plain")
	require.NoError(t, err)
	require.Equal(t, exitOK, ExitCode(err))
	require.Contains(t, c.mustRun("show", "2"), "title: plain")
}

func TestDeleteSoleRootIsRefused(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	before := c.token()

	_, _, err := c.run("", "delete", "1")
	require.Equal(t, exitViolation, ExitCode(err))
	require.Equal(t, before, c.token())
}

func TestExportImport(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init", "Home")
	c.mustRun("create", "Kitchen", "-p", "1")
	c.mustRun("create", "Shelf", "-p", "2")

	file := filepath.Join(t.TempDir(), "home.yaml")
	require.Empty(t, c.mustRun("tree", "-f", "yaml", "-o", file))

	c.mustRun("create", "Archive", "--seq", "1")
	out := c.mustRun("import", file, "-p", "4")
	require.Contains(t, out, "imported 3\n")

	tree := c.mustRun("tree")
	require.Contains(t, tree, "4 Archive\n  5 Home\n    6 Kitchen\n      7 Shelf\n")
}

func TestImportUnknownFormat(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")

	_, _, err := c.run("<tree/>", "import", "-", "-f", "xml")
	require.Equal(t, exitInvalid, ExitCode(err))
}

func TestFsck(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("create", "a", "-p", "1")

	require.Empty(t, c.mustRun("fsck"))
	require.Contains(t, c.mustRun("fsck", "-f", "json"), `"roots": []`)
}

func TestMissingStore(t *testing.T) {
	c := newCLI(t)

	_, _, err := c.run("", "token")
	require.Equal(t, exitNotFound, ExitCode(err))

	_, _, err = c.run("", "--store", "../outside.ctb", "init")
	require.Equal(t, exitInvalid, ExitCode(err))
}

func TestBadFlagIsInvalidArgument(t *testing.T) {
	c := newCLI(t)

	_, _, err := c.run("", "create", "x", "--seq", "first")
	require.Equal(t, exitInvalid, ExitCode(err))

	_, _, err = c.run("", "show", "abc")
	require.Equal(t, exitInvalid, ExitCode(err))
}

func TestConfigShow(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("config", "show")
	require.Contains(t, out, "Config: "+c.cfgPath)
	require.Contains(t, out, "Store root: "+c.root)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{fmt.Errorf("wrapped: %w", domain.ErrNoChanges), exitOK},
		{domain.InvalidArgumentf("x"), exitInvalid},
		{domain.NotFoundf("node 3"), exitNotFound},
		{&domain.ConflictError{Title: "t"}, exitConflict},
		{&domain.NotEditableError{IsRich: true}, exitNotEditable},
		{domain.ErrLogicViolation, exitViolation},
		{fmt.Errorf("%w: exclusive", store.ErrLockTimeout), exitLocked},
		{errors.New("disk on fire"), exitFailure},
	}

	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
