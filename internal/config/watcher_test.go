package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrWong99/renoquote/internal/config"
)

const (
	baseYAML = `
server:
  log_level: info
catalog:
  files: [seed.yaml]
pricing:
  margin: 0.25
`
	louderYAML = `
server:
  log_level: debug
catalog:
  files: [seed.yaml]
pricing:
  margin: 0.30
`
	brokenYAML = `
server:
  log_level: bananas
`
)

type revision struct{ old, new *config.Config }

// startWatcher writes baseYAML to a temp file and watches it, forwarding
// every reload to the returned channel.
func startWatcher(t *testing.T) (string, *config.Watcher, <-chan revision) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "renoquote.yaml")
	mustWrite(t, path, baseYAML)

	ch := make(chan revision, 4)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		ch <- revision{old, new}
	}, config.WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return path, w, ch
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func expectNoReload(t *testing.T, ch <-chan revision) {
	t.Helper()
	select {
	case r := <-ch:
		t.Errorf("unexpected reload to log_level %q", r.new.Server.LogLevel)
	case <-time.After(300 * time.Millisecond):
	}
}

func expectReload(t *testing.T, ch <-chan revision) revision {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("no reload within 3s")
		return revision{}
	}
}

func TestWatcher_InitialRevision(t *testing.T) {
	t.Parallel()
	_, w, _ := startWatcher(t)

	cur := w.Current()
	if cur == nil {
		t.Fatal("Current() = nil")
	}
	if cur.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want %q", cur.Server.LogLevel, config.LogInfo)
	}
	if m := cur.Pricing.Margin; m == nil || !m.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("margin = %v, want 0.25", m)
	}
}

func TestWatcher_ReloadsEditedFile(t *testing.T) {
	t.Parallel()
	path, w, ch := startWatcher(t)

	mustWrite(t, path, louderYAML)
	r := expectReload(t, ch)

	if r.old.Server.LogLevel != config.LogInfo || r.new.Server.LogLevel != config.LogDebug {
		t.Errorf("log level %q -> %q, want info -> debug", r.old.Server.LogLevel, r.new.Server.LogLevel)
	}
	d := config.Diff(r.old, r.new)
	if !d.LogLevelChanged || len(d.RestartRequired) != 1 || d.RestartRequired[0] != "pricing" {
		t.Errorf("Diff = %+v, want log level change and pricing restart", d)
	}
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("Current() log_level = %q, want %q", got, config.LogDebug)
	}
}

func TestWatcher_FollowsRenameOverFile(t *testing.T) {
	t.Parallel()
	path, _, ch := startWatcher(t)

	tmp := path + ".swp"
	mustWrite(t, tmp, louderYAML)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if r := expectReload(t, ch); r.new.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q, want %q", r.new.Server.LogLevel, config.LogDebug)
	}
}

func TestWatcher_IgnoresInvalidRevision(t *testing.T) {
	t.Parallel()
	path, w, ch := startWatcher(t)

	mustWrite(t, path, brokenYAML)
	expectNoReload(t, ch)

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current() log_level = %q, want previous %q", got, config.LogInfo)
	}

	// A later valid edit is still picked up.
	mustWrite(t, path, louderYAML)
	if r := expectReload(t, ch); r.old.Server.LogLevel != config.LogInfo {
		t.Errorf("old log_level = %q, want %q", r.old.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_IgnoresUnchangedContent(t *testing.T) {
	t.Parallel()
	path, _, ch := startWatcher(t)

	later := time.Now().Add(time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	mustWrite(t, path, baseYAML)
	expectNoReload(t, ch)
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	t.Parallel()
	path, _, ch := startWatcher(t)

	mustWrite(t, filepath.Join(filepath.Dir(path), "other.yaml"), louderYAML)
	expectNoReload(t, ch)
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("NewWatcher on a missing file returned nil error")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	t.Parallel()
	_, w, _ := startWatcher(t)
	w.Stop()
	w.Stop()
}
