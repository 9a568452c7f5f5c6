package kv

import (
	"testing"
)

// TestMintFormat tests the canonical versionstamp form
func TestMintFormat(t *testing.T) {
	var m stampMinter
	stamp := m.mint()

	if len(stamp) != versionstampLen {
		t.Errorf("versionstamp length = %d, want %d", len(stamp), versionstampLen)
	}
	if !isValidVersionstamp(stamp) {
		t.Errorf("minted versionstamp %q is not canonical", stamp)
	}
}

// TestMintStrictlyIncreasing tests that consecutive mints always increase
func TestMintStrictlyIncreasing(t *testing.T) {
	var m stampMinter
	prev := m.mint()

	// far more mints than fit in one millisecond's sequence space
	for i := 0; i < 100000; i++ {
		stamp := m.mint()
		if stamp <= prev {
			t.Fatalf("mint %d not increasing: %q after %q", i, stamp, prev)
		}
		prev = stamp
	}
}

// TestMintConcurrent tests that concurrent mints never collide
func TestMintConcurrent(t *testing.T) {
	var m stampMinter

	const workers = 8
	const perWorker = 2000

	results := make(chan string, workers*perWorker)
	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			for j := 0; j < perWorker; j++ {
				results <- m.mint()
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < workers; i++ {
		<-done
	}
	close(results)

	seen := make(map[string]bool, workers*perWorker)
	for stamp := range results {
		if seen[stamp] {
			t.Fatalf("duplicate versionstamp %q", stamp)
		}
		seen[stamp] = true
	}
}

// TestIsValidVersionstamp tests the canonical form check
func TestIsValidVersionstamp(t *testing.T) {
	valid := []string{
		"00000197f00000000000",
		"ffffffffffffffffffff",
	}
	invalid := []string{
		"",
		"short",
		"00000197f0000000000",   // 19 chars
		"00000197f000000000000", // 21 chars
		"00000197F00000000000",  // uppercase
		"00000197g00000000000",  // non-hex
	}

	for _, s := range valid {
		if !isValidVersionstamp(s) {
			t.Errorf("isValidVersionstamp(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if isValidVersionstamp(s) {
			t.Errorf("isValidVersionstamp(%q) = true, want false", s)
		}
	}
}
