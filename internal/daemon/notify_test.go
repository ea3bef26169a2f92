package daemon_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tally/internal/daemon"
	"tally/internal/kvstore"
	"tally/internal/notifications"
	"tally/internal/session"
	"tally/internal/testsupport"
)

type published struct {
	event   notifications.Event
	payload notifications.Payload
}

type fakeNotifier struct {
	events chan published
}

func (f *fakeNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	f.events <- published{event: event, payload: payload}
	return nil
}

func TestCompletedRunIsAnnounced(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(filepath.Dir(cfg.Paths.DataDir), "small.dat")
	testsupport.WriteLedger(t, path, 4096, map[int64]string{
		16:   "USD 10",
		2000: "EUR=2.50",
	})

	store, err := kvstore.Open(cfg)
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	notifier := &fakeNotifier{events: make(chan published, 4)}
	var mu sync.Mutex
	var observed []session.State
	observe := func(st session.State) {
		mu.Lock()
		observed = append(observed, st)
		mu.Unlock()
	}
	d, err := daemon.New(cfg, store, nil, daemon.WithNotifier(notifier), daemon.WithSessionObserver(observe))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := d.SelectFile(context.Background(), path, daemon.SelectOptions{}); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}

	select {
	case got := <-notifier.events:
		if got.event != notifications.EventRunCompleted {
			t.Fatalf("expected completion event, got %s", got.event)
		}
		if got.payload.File != "small.dat" || got.payload.Records != 2 {
			t.Fatalf("unexpected payload %+v", got.payload)
		}
		if len(got.payload.Balances) != 2 {
			t.Fatalf("expected two balances, got %+v", got.payload.Balances)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("completion was not announced")
	}

	d.Engine().Wait()
	mu.Lock()
	defer mu.Unlock()
	if len(observed) == 0 {
		t.Fatal("session observer was never called")
	}
	last := observed[len(observed)-1]
	if !last.IsComplete || len(last.Balances) != 2 {
		t.Fatalf("expected completed session with two balances, got %+v", last)
	}
}
