package checkpoint_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/checkpoint"
	"tally/internal/fileid"
	"tally/internal/ledger"
	"tally/internal/logging"
	"tally/internal/testsupport"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newStore(t *testing.T) (*checkpoint.Store, *clock) {
	t.Helper()
	kv := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return checkpoint.NewStore(kv, checkpoint.Options{
		MaxAge:   7 * 24 * time.Hour,
		Compress: true,
		Now:      c.Now,
	}, logging.NewNop()), c
}

func identity(name string, digest uint32) fileid.Identity {
	return fileid.Identity{Digest: digest, Size: 100_000_000, ModTime: 1_700_000_000_000, Name: name}
}

func usdBalances(total string, count int64) []ledger.CurrencyBalance {
	d := decimal.RequireFromString(total)
	return []ledger.CurrencyBalance{{
		Currency:     "USD",
		Total:        d,
		Count:        count,
		Largest:      d,
		Smallest:     d,
		AccountLabel: ledger.AccountLabel("USD"),
		LastUpdate:   time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}}
}

func mustValid(t *testing.T, lookup checkpoint.Lookup) checkpoint.ProgressCheckpoint {
	t.Helper()
	valid, ok := lookup.(checkpoint.ValidCheckpoint)
	if !ok {
		t.Fatalf("expected ValidCheckpoint, got %T", lookup)
	}
	return valid.Checkpoint
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := identity("ledger.dat", 0xabc)
	balances := usdBalances("60.25", 3)

	if err := store.SaveProgress(ctx, id, 42, 42_000_000, balances); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	lookup, err := store.LoadProgress(ctx, id)
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}
	cp := mustValid(t, lookup)
	if cp.BytesProcessed != 42_000_000 || cp.Percent != 42 || cp.FileSize != id.Size || cp.FileName != "ledger.dat" {
		t.Fatalf("unexpected checkpoint %+v", cp)
	}
	if len(cp.Balances) != 1 {
		t.Fatalf("unexpected balances %+v", cp.Balances)
	}
	got := cp.Balances[0]
	if got.Currency != "USD" || !got.Total.Equal(balances[0].Total) || got.Count != 3 ||
		!got.Largest.Equal(balances[0].Largest) || !got.LastUpdate.Equal(balances[0].LastUpdate) ||
		got.AccountLabel != "US Dollars Account" {
		t.Fatalf("balance did not round trip: %+v", got)
	}
	if cp.SchemaVersion != checkpoint.SchemaVersion {
		t.Fatalf("schema version %d", cp.SchemaVersion)
	}
}

func TestLoadMissingAndMismatch(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	lookup, err := store.LoadProgress(ctx, identity("ledger.dat", 1))
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}
	if _, ok := lookup.(checkpoint.NoCheckpoint); !ok {
		t.Fatalf("expected NoCheckpoint, got %T", lookup)
	}

	if err := store.SaveProgress(ctx, identity("ledger.dat", 1), 10, 10_000_000, nil); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	lookup, err = store.LoadProgress(ctx, identity("ledger.dat", 2))
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}
	mismatch, ok := lookup.(checkpoint.IdentityMismatch)
	if !ok {
		t.Fatalf("expected IdentityMismatch, got %T", lookup)
	}
	if len(mismatch.StoredKeys) != 1 || mismatch.StoredKeys[0] != identity("ledger.dat", 1).Key() {
		t.Fatalf("unexpected stored keys %v", mismatch.StoredKeys)
	}

	lookup, err = store.LoadProgress(ctx, identity("other.dat", 1))
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}
	if _, ok := lookup.(checkpoint.NoCheckpoint); !ok {
		t.Fatalf("expected NoCheckpoint for unrelated name, got %T", lookup)
	}
}

func TestStaleCheckpointDiscarded(t *testing.T) {
	store, c := newStore(t)
	ctx := context.Background()
	id := identity("old.dat", 7)
	if err := store.SaveProgress(ctx, id, 50, 50_000_000, nil); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	c.Advance(7*24*time.Hour + time.Minute)

	lookup, err := store.LoadProgress(ctx, id)
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}
	stale, ok := lookup.(checkpoint.StaleCheckpoint)
	if !ok {
		t.Fatalf("expected StaleCheckpoint, got %T", lookup)
	}
	if stale.Age <= 7*24*time.Hour {
		t.Fatalf("unexpected age %s", stale.Age)
	}
	lookup, err = store.LoadProgress(ctx, id)
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}
	if _, ok := lookup.(checkpoint.NoCheckpoint); !ok {
		t.Fatalf("stale checkpoint should be deleted, got %T", lookup)
	}
}

func TestStaleCheckpointOfChangedFileDiscarded(t *testing.T) {
	store, c := newStore(t)
	ctx := context.Background()
	if err := store.SaveProgress(ctx, identity("ledger.dat", 1), 20, 20_000_000, nil); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	c.Advance(8 * 24 * time.Hour)
	if err := store.SaveProgress(ctx, identity("ledger.dat", 3), 5, 5_000_000, nil); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	lookup, err := store.LoadProgress(ctx, identity("ledger.dat", 2))
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}
	mismatch, ok := lookup.(checkpoint.IdentityMismatch)
	if !ok {
		t.Fatalf("expected IdentityMismatch, got %T", lookup)
	}
	if len(mismatch.StoredKeys) != 1 || mismatch.StoredKeys[0] != identity("ledger.dat", 3).Key() {
		t.Fatalf("stale entry should not be reported, got %v", mismatch.StoredKeys)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Key != identity("ledger.dat", 3).Key() {
		t.Fatalf("expected the stale checkpoint to be deleted, got %+v", list)
	}

	c.Advance(8 * 24 * time.Hour)
	lookup, err = store.LoadProgress(ctx, identity("ledger.dat", 2))
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}
	if _, ok := lookup.(checkpoint.StaleCheckpoint); !ok {
		t.Fatalf("expected StaleCheckpoint once only stale entries remain, got %T", lookup)
	}
	if list, _ := store.List(ctx); len(list) != 0 {
		t.Fatalf("expected no checkpoints, got %+v", list)
	}
}

func TestListClearAndProfiles(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	a, b := identity("a.dat", 1), identity("b.dat", 2)
	for _, id := range []fileid.Identity{a, b} {
		if err := store.SaveProgress(ctx, id, 25, 25_000_000, usdBalances("5", 1)); err != nil {
			t.Fatalf("SaveProgress: %v", err)
		}
	}
	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Currencies != 1 || list[0].Stale {
		t.Fatalf("unexpected list %+v", list)
	}
	if has, err := store.HasProgress(ctx); err != nil || !has {
		t.Fatalf("HasProgress = %v, %v", has, err)
	}

	if err := store.ClearKey(ctx, a.Key()); err != nil {
		t.Fatalf("ClearKey: %v", err)
	}
	if lookup, _ := store.LoadProgress(ctx, a); lookup != (checkpoint.NoCheckpoint{}) {
		t.Fatalf("expected cleared checkpoint, got %T", lookup)
	}

	cp := mustValid(t, mustLoad(t, store, b))
	if err := store.SaveProfile(ctx, "quarterly", cp); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	removed, err := store.ClearAll(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("ClearAll = %d, %v", removed, err)
	}
	profile, err := store.LoadProfile(ctx, "quarterly")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if mustValid(t, profile).BytesProcessed != 25_000_000 {
		t.Fatal("profile slot should survive ClearAll")
	}
	if err := store.ClearProfile(ctx, "quarterly"); err != nil {
		t.Fatalf("ClearProfile: %v", err)
	}
	if profile, _ := store.LoadProfile(ctx, "quarterly"); profile != (checkpoint.NoCheckpoint{}) {
		t.Fatalf("expected empty profile slot, got %T", profile)
	}
	if err := store.SaveProfile(ctx, " ", cp); err == nil {
		t.Fatal("expected error for blank profile id")
	}
}

func mustLoad(t *testing.T, store *checkpoint.Store, id fileid.Identity) checkpoint.Lookup {
	t.Helper()
	lookup, err := store.LoadProgress(context.Background(), id)
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}
	return lookup
}
