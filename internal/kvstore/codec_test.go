package kvstore

import (
	"strings"
	"testing"
)

type sample struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func TestCodecRoundTrip(t *testing.T) {
	large := sample{Name: "ledger", Items: strings.Fields(strings.Repeat("USD EUR GBP ", 200))}
	small := sample{Name: "x"}

	tests := []struct {
		name       string
		codec      Codec
		value      sample
		wantHeader byte
	}{
		{"raw small", Codec{}, small, headerJSON},
		{"raw large", Codec{}, large, headerJSON},
		{"compress small stays raw", Codec{Compress: true}, small, headerJSON},
		{"compress large", Codec{Compress: true}, large, headerLZ4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.codec.Marshal(tt.value)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if data[0] != tt.wantHeader {
				t.Fatalf("header = %q, want %q", data[0], tt.wantHeader)
			}
			var got sample
			if err := tt.codec.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got.Name != tt.value.Name || len(got.Items) != len(tt.value.Items) {
				t.Fatalf("round trip mismatch: %+v", got)
			}
		})
	}
}

func TestCodecRejectsCorruptPayloads(t *testing.T) {
	var v sample
	for _, data := range [][]byte{nil, {'x', '{', '}'}, {headerLZ4, 1}, {headerJSON, '{'}} {
		if err := (Codec{}).Unmarshal(data, &v); err == nil {
			t.Fatalf("expected error for %q", data)
		}
	}
}
