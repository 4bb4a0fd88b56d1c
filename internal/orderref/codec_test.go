package orderref

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := NewCodec()

	tests := []struct {
		name     string
		splitID  string
		memberID string
	}{
		{"simple", "S1", "M1"},
		{"uuid split", "6f1c2a9e-3b7d-4c1e-9a55-2d0f7c1b8e44", "alice"},
		{"split with separator", "team_dinner_2024", "bob"},
		{"split ending with separator", "trip_", "carol"},
		{"member with dashes", "S1", "m-0042"},
		{"unicode", "सफ़र", "राज"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := codec.Encode(tt.splitID, tt.memberID)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := Decode(ref)
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", ref, err)
			}
			if got.SplitID != tt.splitID {
				t.Errorf("SplitID = %q, want %q", got.SplitID, tt.splitID)
			}
			if got.MemberID != tt.memberID {
				t.Errorf("MemberID = %q, want %q", got.MemberID, tt.memberID)
			}
			if got.String() != ref {
				t.Errorf("String() = %q, want %q", got.String(), ref)
			}
		})
	}
}

func TestEncodeRejectsAmbiguousIDs(t *testing.T) {
	codec := NewCodec()

	tests := []struct {
		name     string
		splitID  string
		memberID string
	}{
		{"member contains separator", "S1", "M_1"},
		{"empty split", "", "M1"},
		{"empty member", "S1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Encode(tt.splitID, tt.memberID)
			if !errors.Is(err, ErrInvalidID) {
				t.Errorf("Encode() error = %v, want ErrInvalidID", err)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		ref      string
		wantErr  bool
		splitID  string
		memberID string
		nonce    string
	}{
		{ref: "S1_M1_1000", splitID: "S1", memberID: "M1", nonce: "1000"},
		{ref: "a_b_c_M1_1000", splitID: "a_b_c", memberID: "M1", nonce: "1000"},
		{ref: "S1", wantErr: true},
		{ref: "S1_M1", wantErr: true},
		{ref: "", wantErr: true},
		{ref: "S1__1000", wantErr: true},
		{ref: "S1_M1_", wantErr: true},
		{ref: "_M1_1000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := Decode(tt.ref)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedReference) {
					t.Fatalf("Decode(%q) error = %v, want ErrMalformedReference", tt.ref, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", tt.ref, err)
			}
			if got.SplitID != tt.splitID || got.MemberID != tt.memberID || got.Nonce != tt.nonce {
				t.Errorf("Decode(%q) = %+v", tt.ref, got)
			}
		})
	}
}

func TestNonceStrictlyIncreases(t *testing.T) {
	codec := NewCodecWithClock(fixedClock(1_700_000_000_000))

	var prev int64
	for i := 0; i < 5; i++ {
		ref, err := codec.Encode("S1", "M1")
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		r, _ := Decode(ref)
		n, err := strconv.ParseInt(r.Nonce, 10, 64)
		if err != nil {
			t.Fatalf("nonce %q is not numeric", r.Nonce)
		}
		if n <= prev {
			t.Fatalf("nonce %d not greater than previous %d", n, prev)
		}
		prev = n
	}
	if prev != 1_700_000_000_004 {
		t.Errorf("last nonce = %d, want 1700000000004", prev)
	}
}

func TestNonceUniqueUnderConcurrency(t *testing.T) {
	codec := NewCodecWithClock(fixedClock(42))

	const n = 50
	refs := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := codec.Encode("S1", "M1")
			if err != nil {
				t.Errorf("Encode() error = %v", err)
				return
			}
			refs <- ref
		}()
	}
	wg.Wait()
	close(refs)

	seen := make(map[string]bool)
	for ref := range refs {
		if seen[ref] {
			t.Fatalf("duplicate reference %q", ref)
		}
		seen[ref] = true
	}
	if len(seen) != n {
		t.Errorf("got %d references, want %d", len(seen), n)
	}
}
