package prevalence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequence_StartsAfter(t *testing.T) {
	s := NewSequence(0)
	assert.Equal(t, int64(0), s.Current())
	assert.Equal(t, int64(1), s.Next())
	assert.Equal(t, int64(2), s.Next())
	assert.Equal(t, int64(2), s.Current())

	resumed := NewSequence(100)
	assert.Equal(t, int64(101), resumed.Next(), "resumes after the journal's last seq")
}

func TestSequence_Rewind(t *testing.T) {
	s := NewSequence(0)
	n := s.Next()
	s.Rewind(n)
	assert.Equal(t, int64(0), s.Current())

	s.Next()
	s.Next()
	s.Rewind(1)
	assert.Equal(t, int64(2), s.Current(), "only the latest value can be given back")
}

func TestSequence_ThreadSafe(t *testing.T) {
	s := NewSequence(0)
	const goroutines = 100
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	seqs := make(chan int64, goroutines*callsPerGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				seqs <- s.Next()
			}
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool)
	for seq := range seqs {
		assert.False(t, seen[seq], "seq %d generated twice", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, goroutines*callsPerGoroutine)
}
