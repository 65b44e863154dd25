package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

type recordingSubscriber struct {
	calls int
	last  *Config
	err   error
}

func (r *recordingSubscriber) OnConfigReload(cfg *Config) error {
	r.calls++
	r.last = cfg
	return r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReloaderCurrent(t *testing.T) {
	cfg := baseConfig()
	r := NewReloader("unused.yaml", cfg, discardLogger())
	if r.Current() != cfg {
		t.Error("Current should return the initial config")
	}
}

func TestReloadAppliesChangesAndNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cordon.yaml")
	if err := os.WriteFile(path, []byte(minimalConfig), 0644); err != nil {
		t.Fatal(err)
	}

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	r := NewReloader(path, initial, discardLogger())
	sub := &recordingSubscriber{}
	r.Register(sub)

	updated := minimalConfig + `
admin:
  allowlist:
    - root@example.com
`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}

	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if sub.calls != 1 {
		t.Errorf("expected 1 subscriber notification, got %d", sub.calls)
	}
	cur := r.Current()
	if len(cur.Admin.Allowlist) != 1 || cur.Admin.Allowlist[0] != "root@example.com" {
		t.Errorf("expected reloaded allowlist, got %v", cur.Admin.Allowlist)
	}
}

func TestReloadKeepsCurrentOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cordon.yaml")
	if err := os.WriteFile(path, []byte(minimalConfig), 0644); err != nil {
		t.Fatal(err)
	}

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	r := NewReloader(path, initial, discardLogger())
	sub := &recordingSubscriber{}
	r.Register(sub)

	if err := os.WriteFile(path, []byte("proxy: ["), 0644); err != nil {
		t.Fatal(err)
	}

	if err := r.Reload(); err == nil {
		t.Fatal("expected reload error for invalid file")
	}
	if sub.calls != 0 {
		t.Error("subscribers must not be notified on failed reload")
	}
	if r.Current() != initial {
		t.Error("current config must be retained on failed reload")
	}
}

func TestReloadNoChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cordon.yaml")
	if err := os.WriteFile(path, []byte(minimalConfig), 0644); err != nil {
		t.Fatal(err)
	}

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	r := NewReloader(path, initial, discardLogger())
	sub := &recordingSubscriber{}
	r.Register(sub)

	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if sub.calls != 0 {
		t.Error("no-change reload must not notify subscribers")
	}
}
