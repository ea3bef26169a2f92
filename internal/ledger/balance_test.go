package ledger

import (
	"testing"
	"time"
)

func TestMergeBalances(t *testing.T) {
	seeded := []CurrencyBalance{{Currency: "USD", Total: dec("60"), Count: 3}}
	newer := []CurrencyBalance{{Currency: "USD", Total: dec("70"), Count: 4}}

	tests := []struct {
		name     string
		previous []CurrencyBalance
		incoming []CurrencyBalance
		want     []CurrencyBalance
	}{
		{"empty tick keeps seeded", seeded, nil, seeded},
		{"empty slice keeps seeded", seeded, []CurrencyBalance{}, seeded},
		{"data supersedes", seeded, newer, newer},
		{"first data", nil, newer, newer},
		{"both empty", nil, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeBalances(tt.previous, tt.incoming)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v want %v", got, tt.want)
			}
			for i := range got {
				if got[i].Currency != tt.want[i].Currency || !got[i].Total.Equal(tt.want[i].Total) {
					t.Fatalf("got %v want %v", got, tt.want)
				}
			}
		})
	}
}

func TestSnapshotIsSortedAndRoundTrips(t *testing.T) {
	b := Balances{}
	now := time.Unix(1700000000, 0)
	b.Fold("USD", dec("1"), now)
	b.Fold("EUR", dec("2"), now)
	b.Fold("GBP", dec("3"), now)
	snap := b.Snapshot()
	if snap[0].Currency != "EUR" || snap[1].Currency != "GBP" || snap[2].Currency != "USD" {
		t.Fatalf("snapshot not sorted: %v", snap)
	}
	back := FromSnapshot(snap)
	if len(back) != 3 || !back["GBP"].Total.Equal(dec("3")) {
		t.Fatalf("unexpected rebuild %v", back)
	}
}

func TestAccountLabel(t *testing.T) {
	if got := AccountLabel("JPY"); got != "Japanese Yen Account" {
		t.Fatalf("AccountLabel(JPY) = %q", got)
	}
	if got := AccountLabel("NZD"); got != "NZD Account" {
		t.Fatalf("AccountLabel(NZD) = %q", got)
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount("USD", dec("1234.5")); got != "$1,234.50" {
		t.Fatalf("FormatAmount(USD) = %q", got)
	}
	if got := FormatAmount("XYZ", dec("3.456")); got != "3.46 XYZ" {
		t.Fatalf("FormatAmount(XYZ) = %q", got)
	}
}
