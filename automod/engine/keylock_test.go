package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLocks(t *testing.T) {
	assert := assert.New(t)

	kl := NewKeyLocks()
	counters := map[string]*int{"a": new(int), "b": new(int)}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		key := "a"
		if i%2 == 1 {
			key = "b"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				unlock := kl.Lock(key)
				// unsynchronized read-modify-write, safe only under the key lock
				v := *counters[key]
				*counters[key] = v + 1
				unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(800, *counters["a"])
	assert.Equal(800, *counters["b"])
	// entries are dropped once released
	assert.Equal(0, kl.Size())
}
