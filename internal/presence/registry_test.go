// ABOUTME: Tests for the presence registry
// ABOUTME: Idempotent transitions and consistency under concurrent connect/disconnect

package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_ConnectIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)

	assert.Equal(t, Connected, r.Connect("c1"))
	assert.Equal(t, AlreadyConnected, r.Connect("c1"))
	assert.Equal(t, []string{"c1"}, r.Snapshot())
}

func TestRegistry_DisconnectAbsentIsNoop(t *testing.T) {
	r := NewRegistry(nil)

	assert.False(t, r.Disconnect("ghost"))

	r.Connect("c1")
	assert.True(t, r.Disconnect("c1"))
	assert.False(t, r.Disconnect("c1"))
	assert.Empty(t, r.Snapshot())
	assert.False(t, r.Contains("c1"))
}

func TestRegistry_SnapshotIsSortedCopy(t *testing.T) {
	r := NewRegistry(nil)
	r.Connect("b")
	r.Connect("a")
	r.Connect("c")

	snap := r.Snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, snap)

	snap[0] = "mutated"
	assert.True(t, r.Contains("a"))
}

func TestRegistry_ConcurrentTransitionsNetEffect(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	connectedCount := make([]int, 10)
	var mu sync.Mutex

	for i := range 10 {
		id := fmt.Sprintf("c%d", i)
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if r.Connect(id) == Connected {
					mu.Lock()
					connectedCount[i]++
					mu.Unlock()
				}
			}()
		}
	}
	wg.Wait()

	// Exactly one Connected per id no matter how many racing connects
	for i, n := range connectedCount {
		assert.Equal(t, 1, n, "id c%d", i)
	}
	assert.Len(t, r.Snapshot(), 10)

	// Disconnect the even ids many times concurrently
	removed := make([]int, 10)
	for i := 0; i < 10; i += 2 {
		id := fmt.Sprintf("c%d", i)
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if r.Disconnect(id) {
					mu.Lock()
					removed[i]++
					mu.Unlock()
				}
			}()
		}
	}
	wg.Wait()

	for i := 0; i < 10; i += 2 {
		assert.Equal(t, 1, removed[i], "id c%d", i)
	}
	assert.Equal(t, []string{"c1", "c3", "c5", "c7", "c9"}, r.Snapshot())
}
