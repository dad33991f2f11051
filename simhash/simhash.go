// Package simhash fingerprints short texts so that near-duplicate product
// titles extracted from the same page can be collapsed.
package simhash

import (
	"hash/fnv"
	"math/bits"
)

// Fingerprint computes a 64-bit SimHash over pre-normalized tokens. Each
// token contributes weight 2 and each adjacent token pair weight 1, so word
// order matters less than word choice.
func Fingerprint(tokens []string) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	add := func(feature string, weight int) {
		h := fnv.New64a()
		h.Write([]byte(feature))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i] += weight
			} else {
				vector[i] -= weight
			}
		}
	}

	for i, tok := range tokens {
		add(tok, 2)
		if i > 0 {
			add(tokens[i-1]+" "+tok, 1)
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Index remembers fingerprints and rejects ones within threshold bits of
// an earlier entry. Not safe for concurrent use.
type Index struct {
	threshold int
	seen      []uint64
}

func NewIndex(threshold int) *Index {
	return &Index{threshold: threshold}
}

// Add records fp and reports whether it was new. The zero fingerprint
// (empty input) is never recorded and always reported as new.
func (ix *Index) Add(fp uint64) bool {
	if fp == 0 {
		return true
	}
	for _, s := range ix.seen {
		if Distance(s, fp) <= ix.threshold {
			return false
		}
	}
	ix.seen = append(ix.seen, fp)
	return true
}
