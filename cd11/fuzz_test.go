package cd11

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fuzzRounds returns the number of rounds from FUZZ_ROUNDS, default 1000.
func fuzzRounds() int {
	if v := os.Getenv("FUZZ_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

// newFuzzRng seeds from FUZZ_SEED or the clock and logs the seed.
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if v := os.Getenv("FUZZ_SEED"); v != "" {
		if s, err := strconv.ParseInt(v, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// checkDecodeResult asserts that exactly one variant is set and that it
// carries the input bytes.
func checkDecodeResult(t *testing.T, in []byte, res FrameOrMalformed) {
	t.Helper()
	f, isFrame := res.AsFrame()
	m, isMalformed := res.AsMalformed()
	require.NotEqual(t, isFrame, isMalformed, "exactly one variant must be set")

	switch res.Kind() {
	case KindFrame:
		require.True(t, isFrame)
		require.Equal(t, in, f.Raw)
	case KindMalformed:
		require.True(t, isMalformed)
		require.Equal(t, in, m.Raw)
		require.Error(t, m.Cause)
	default:
		t.Fatalf("unexpected kind %s", res.Kind())
	}
}

func FuzzDecode(f *testing.F) {
	for i, p := range samplePayloads() {
		raw := mustEncode(NewFrame("AAK", "0", int64(i), p))
		f.Add(raw, true)
		f.Add(raw[:len(raw)/2], false)
		f.Add(raw[:HeaderLength], false)
	}
	f.Add([]byte{}, false)

	f.Fuzz(func(t *testing.T, in []byte, verifyCRC bool) {
		checkDecodeResult(t, in, NewDecoder(WithCRCVerification(verifyCRC)).Decode(in))
	})
}

func TestDecodeRandomMutations(t *testing.T) {
	rng := newFuzzRng(t)
	payloads := samplePayloads()
	dec := NewDecoder()

	for round := 0; round < fuzzRounds(); round++ {
		raw := mustEncode(NewFrame("AAK", "0", int64(round), payloads[rng.Intn(len(payloads))]))
		for n := rng.Intn(4); n >= 0; n-- {
			raw[rng.Intn(len(raw))] = byte(rng.Intn(256))
		}
		if rng.Intn(4) == 0 {
			raw = raw[:rng.Intn(len(raw))]
		}
		checkDecodeResult(t, raw, dec.Decode(raw))
	}
}
