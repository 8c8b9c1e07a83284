package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/mbrt/mb-stash-go/internal/config"
	"github.com/mbrt/mb-stash-go/internal/logging"
	"github.com/mbrt/mb-stash-go/internal/process"
	"github.com/mbrt/mb-stash-go/internal/stash"
)

func startTestServer(t *testing.T, cfg config.Config) (*Client, func()) {
	t.Helper()

	s := stash.New(cfg.StashPath(), nil)
	if err := s.Init("hunter2"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	srv := NewServer(cfg, logging.NewDiscardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !process.IsConnectable(cfg.SocketPath()) {
		if time.Now().After(deadline) {
			t.Fatal("daemon did not start listening in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	client := NewClient(cfg.SocketPath())
	return client, func() {
		cancel()
		<-errCh
	}
}

func TestDaemon_UnlockGetLockEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{DataDir: dir, ClipboardTimeout: 30 * time.Second}
	client, stop := startTestServer(t, cfg)
	defer stop()

	resp, err := client.Health()
	if err != nil || !resp.Ok || resp.Data["unlocked"] != false {
		t.Fatalf("expected locked health, got %+v, err=%v", resp, err)
	}

	if resp, err := client.Unlock("wrong-password"); err != nil || resp.Ok || resp.Error != "wrong_password" {
		t.Fatalf("expected wrong_password, got %+v, err=%v", resp, err)
	}

	if resp, err := client.Unlock("hunter2"); err != nil || !resp.Ok {
		t.Fatalf("Unlock: %+v, err=%v", resp, err)
	}

	if resp, err := client.Add("my-token", "secret-value"); err != nil || !resp.Ok {
		t.Fatalf("Add: %+v, err=%v", resp, err)
	}

	resp, err = client.Get("my-token")
	if err != nil || !resp.Ok || resp.Data["value"] != "secret-value" {
		t.Fatalf("Get: %+v, err=%v", resp, err)
	}

	if resp, err := client.Get("missing"); err != nil || resp.Ok || resp.Error != "not_found" {
		t.Fatalf("expected not_found, got %+v, err=%v", resp, err)
	}

	if resp, err := client.Lock(); err != nil || !resp.Ok {
		t.Fatalf("Lock: %+v, err=%v", resp, err)
	}

	resp, err = client.Health()
	if err != nil || !resp.Ok {
		t.Fatalf("Health: %+v, err=%v", resp, err)
	}
	if resp.Data["unlocked"] != false {
		t.Fatalf("expected locked after Lock, got %+v", resp)
	}
}

func TestDaemon_ListAndRename(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{DataDir: dir}
	client, stop := startTestServer(t, cfg)
	defer stop()

	mustUnlock(t, client)
	mustAdd(t, client, "db-password", "secret123")
	mustAdd(t, client, "api-key", "apikey456")

	resp, err := client.ListKeys("")
	if err != nil || !resp.Ok {
		t.Fatalf("ListKeys: %+v, err=%v", resp, err)
	}
	keys, ok := resp.Data["keys"].([]any)
	if !ok || len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %+v", resp.Data["keys"])
	}

	if resp, err := client.Rename("db-password", "database-password"); err != nil || !resp.Ok {
		t.Fatalf("Rename: %+v, err=%v", resp, err)
	}
	resp, err = client.Get("database-password")
	if err != nil || !resp.Ok || resp.Data["value"] != "secret123" {
		t.Fatalf("Get after rename: %+v, err=%v", resp, err)
	}
}

func TestDaemon_InactivityAutoLock(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{DataDir: dir, InactivityTimeout: 200 * time.Millisecond}
	client, stop := startTestServer(t, cfg)
	defer stop()

	mustUnlock(t, client)

	time.Sleep(500 * time.Millisecond)

	resp, err := client.Health()
	if err != nil || !resp.Ok {
		t.Fatalf("Health: %+v, err=%v", resp, err)
	}
	if resp.Data["unlocked"] != false {
		t.Errorf("expected stash to be auto-locked after inactivity timeout, got %+v", resp)
	}
}

func TestDaemon_StopShutsDownListener(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{DataDir: dir}
	client, stop := startTestServer(t, cfg)
	defer stop()

	if resp, err := client.Stop(); err != nil || !resp.Ok {
		t.Fatalf("Stop: %+v, err=%v", resp, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for process.IsConnectable(cfg.SocketPath()) {
		if time.Now().After(deadline) {
			t.Fatal("daemon socket still connectable after Stop")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func mustUnlock(t *testing.T, c *Client) {
	t.Helper()
	resp, err := c.Unlock("hunter2")
	if err != nil || !resp.Ok {
		t.Fatalf("Unlock: %+v, err=%v", resp, err)
	}
}

func mustAdd(t *testing.T, c *Client, key, value string) {
	t.Helper()
	resp, err := c.Add(key, value)
	if err != nil || !resp.Ok {
		t.Fatalf("Add(%q): %+v, err=%v", key, resp, err)
	}
}

