package fingerprint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
)

// ErrIncomparableHashes signals that two hashes cannot be compared at all
// (different lengths or invalid hex). Callers must treat this distinctly
// from "not similar": it means the comparison is undefined, not that the
// distance is large.
var ErrIncomparableHashes = errors.New("hashes are not comparable")

// HammingDistanceHex computes the bit distance between two equal-length hex
// hashes via XOR-popcount. Unequal lengths or non-hex input return
// ErrIncomparableHashes, never a distance.
func HammingDistanceHex(a, b string) (int, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("%w: length %d vs %d", ErrIncomparableHashes, len(a), len(b))
	}

	ab, err := hex.DecodeString(a)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIncomparableHashes, err)
	}
	bb, err := hex.DecodeString(b)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIncomparableHashes, err)
	}

	distance := 0
	for i := range ab {
		distance += bits.OnesCount8(ab[i] ^ bb[i])
	}
	return distance, nil
}

// Similar reports whether two hex hashes are within the given bit-distance
// threshold. Empty or incomparable hashes are never similar.
func Similar(a, b string, threshold int) bool {
	if a == "" || b == "" {
		return false
	}
	d, err := HammingDistanceHex(a, b)
	if err != nil {
		return false
	}
	return d <= threshold
}
