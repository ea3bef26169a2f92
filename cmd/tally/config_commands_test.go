package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, "", target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "USD, EUR")
}

func TestConfigNotifyTest(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	var mu sync.Mutex
	var title string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		title = r.Header.Get("Title")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "config.toml")
	content := fmt.Sprintf("[paths]\ndata_dir = %q\nlog_dir = %q\n\n[notifications]\nntfy_topic = %q\n",
		filepath.Join(home, "data"), filepath.Join(home, "logs"), server.URL)
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, _, err := runCLI(t, []string{"config", "notify-test"}, "", target)
	if err != nil {
		t.Fatalf("config notify-test: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	mu.Lock()
	defer mu.Unlock()
	if title != "Tally - Test" {
		t.Fatalf("unexpected title %q", title)
	}
}
