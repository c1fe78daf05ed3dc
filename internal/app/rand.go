package app

import (
	crypto "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"
)

// lockedRand makes a *rand.Rand safe to share between request goroutines.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandSource returns the process-wide generator used for question sampling,
// seeded from crypto/rand.
func NewRandSource() RandSource {
	return &lockedRand{rnd: rand.New(rand.NewSource(cryptoSeed()))}
}

func (r *lockedRand) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Perm(n)
}

func cryptoSeed() int64 {
	var b [8]byte
	if _, err := crypto.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
