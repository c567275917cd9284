package dedup

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

const (
	numHashes = 32
	numBands  = 8
	bandRows  = numHashes / numBands
)

// seeds are fixed so signatures are stable across processes.
var seeds = func() [numHashes]uint64 {
	var s [numHashes]uint64
	x := uint64(0x9e3779b97f4a7c15)
	for i := range s {
		x = splitmix(x)
		s[i] = x
	}
	return s
}()

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

func signature(tokens map[string]struct{}) [numHashes]uint64 {
	var sig [numHashes]uint64
	for i := range sig {
		sig[i] = math.MaxUint64
	}
	for tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		base := h.Sum64()
		for i, seed := range seeds {
			if v := splitmix(base ^ seed); v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

func bandKeys(sig [numHashes]uint64) [numBands]uint64 {
	var keys [numBands]uint64
	var buf [8]byte
	for b := 0; b < numBands; b++ {
		h := fnv.New64a()
		binary.LittleEndian.PutUint64(buf[:], uint64(b))
		_, _ = h.Write(buf[:])
		for r := 0; r < bandRows; r++ {
			binary.LittleEndian.PutUint64(buf[:], sig[b*bandRows+r])
			_, _ = h.Write(buf[:])
		}
		keys[b] = h.Sum64()
	}
	return keys
}

// lshIndex buckets kept pairs by MinHash band so only pairs that agree on at
// least one band are compared.
type lshIndex struct {
	buckets map[uint64][]int
}

func newLSHIndex() *lshIndex {
	return &lshIndex{buckets: make(map[uint64][]int)}
}

func (l *lshIndex) candidates(e entry) []int {
	if len(e.tokens) == 0 {
		return nil
	}
	seen := make(map[int]struct{})
	var out []int
	for _, key := range bandKeys(signature(e.tokens)) {
		bucket := l.buckets[key]
		if len(bucket) > maxBucketScan {
			bucket = bucket[:maxBucketScan]
		}
		for _, j := range bucket {
			if _, ok := seen[j]; !ok {
				seen[j] = struct{}{}
				out = append(out, j)
			}
		}
	}
	return out
}

func (l *lshIndex) add(i int, e entry) {
	if len(e.tokens) == 0 {
		return
	}
	for _, key := range bandKeys(signature(e.tokens)) {
		l.buckets[key] = append(l.buckets[key], i)
	}
}
