// Package fracindex generates dense, totally-ordered position keys for
// concurrent ordered-list inserts without renumbering.
//
// Keys are strings over a fixed base-62 alphabet ordered by byte value
// (digits < uppercase < lowercase), so lexicographic byte comparison of
// two keys matches their intended sort order. A small amount of
// randomness is mixed into the final character so two independent
// callers generating a key between the same neighbours produce distinct
// results, with ties broken by the lexicographic order of the keys
// themselves.
package fracindex

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// alphabet is ordered to match intended byte-value ordering.
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const base = len(alphabet)

// maxLength bounds how long a generated key may grow before generation
// gives up; this is the only circumstance under which ErrKeyExhaustion
// is returned, and is unreachable in ordinary use.
const maxLength = 1024

// ErrKeyExhaustion is returned only for pathological adversarial inputs
// that would require a key longer than maxLength.
var ErrKeyExhaustion = errors.New("fracindex: key exhaustion")

func digitOf(b byte) int {
	return strings.IndexByte(alphabet, b)
}

// Between returns a key k such that a < k < b, treating a nil a as
// "less than everything" and a nil b as "greater than everything". If
// both are nil, a canonical midpoint is returned.
func Between(a, b *string) (string, error) {
	if a == nil && b == nil {
		return string(alphabet[base/2]), nil
	}
	av := ""
	if a != nil {
		av = *a
	}
	var bv string
	hasB := b != nil
	if hasB {
		bv = *b
	}

	if a != nil && hasB && av >= bv {
		return "", errors.New("fracindex: a must be strictly less than b")
	}

	return between(av, bv, hasB, 0)
}

// NBetween returns n sorted, distinct keys all strictly between a and b.
func NBetween(a, b *string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]string, 0, n)
	lo := a
	for i := 0; i < n; i++ {
		k, err := Between(lo, b)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
		lo = &out[len(out)-1]
	}
	return out, nil
}

// between does the recursive digit-by-digit midpoint search. hasB
// distinguishes "b is empty string" (invalid, never passed) from
// "b is open/unbounded" represented by hasB=false.
func between(a, b string, hasB bool, depth int) (string, error) {
	if depth > maxLength {
		return "", ErrKeyExhaustion
	}

	var aDigit, bDigit int
	aDigit = 0
	if len(a) > 0 {
		aDigit = digitOf(a[0])
	}
	bDigit = base
	if hasB && len(b) > 0 {
		bDigit = digitOf(b[0])
	}
	// hasB && len(b) == 0 only reaches here via the equal-prefix branch
	// below, which is unreachable: a < b at entry plus equal leading
	// digits implies aRest < bRest at every depth, and nothing is
	// strictly less than "". So bDigit stays at its "open" default.

	if bDigit-aDigit > 1 {
		d := randomDigitBetween(aDigit, bDigit)
		return string(alphabet[d]), nil
	}

	if bDigit-aDigit == 1 {
		// No room for a digit strictly between; recurse one level deeper
		// on a's remainder to extend the key.
		var aRest string
		if len(a) > 0 {
			aRest = a[1:]
		}
		sub, err := between(aRest, "", false, depth+1)
		if err != nil {
			return "", err
		}
		return string(alphabet[aDigit]) + sub, nil
	}

	// aDigit == bDigit (shared prefix character): recurse into the
	// remainders.
	var aRest, bRest string
	if len(a) > 0 {
		aRest = a[1:]
	}
	if hasB && len(b) > 0 {
		bRest = b[1:]
	}
	sub, err := between(aRest, bRest, hasB, depth+1)
	if err != nil {
		return "", err
	}
	return string(alphabet[aDigit]) + sub, nil
}

// randomDigitBetween picks a digit strictly between lo and hi (exclusive
// on both ends), drawing from the whole available gap so that two
// independent callers generating a key between the same neighbours
// diverge; ties are then broken by lexicographic order of the resulting
// keys.
func randomDigitBetween(lo, hi int) int {
	span := hi - lo - 1
	if span <= 0 {
		return lo + 1
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(span)))
	if err != nil {
		// crypto/rand failure is not expected in practice; fall back to
		// the deterministic midpoint rather than panicking.
		return lo + 1 + span/2
	}
	return lo + 1 + int(n.Int64())
}
