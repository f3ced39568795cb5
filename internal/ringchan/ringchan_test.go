package ringchan_test

import (
	"sync"
	"testing"

	"github.com/srg/blerank/internal/ringchan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](rc *ringchan.RingChannel[T]) []T {
	var out []T
	for v := range rc.C() {
		out = append(out, v)
	}
	return out
}

func TestRingChannel_OverwritesOldest(t *testing.T) {
	rc := ringchan.New[int](3)
	for i := 0; i < 10; i++ {
		rc.Send(i)
	}
	rc.Close()

	assert.Equal(t, []int{7, 8, 9}, drain(rc))

	m := rc.GetMetrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
}

func TestRingChannel_SendReportsDrop(t *testing.T) {
	rc := ringchan.New[string](1)
	assert.False(t, rc.Send("a"))
	assert.True(t, rc.Send("b"))
	assert.Equal(t, 1, rc.Len())
	assert.Equal(t, 1, rc.Cap())
}

func TestRingChannel_SendAfterClose(t *testing.T) {
	rc := ringchan.New[int](2)
	rc.Send(1)
	rc.Close()
	rc.Close()

	require.NotPanics(t, func() { rc.Send(2) })
	assert.Equal(t, []int{1}, drain(rc))
	assert.Equal(t, int64(1), rc.GetMetrics().Rejected)
}

func TestRingChannel_ConcurrentProducers(t *testing.T) {
	rc := ringchan.New[int](16)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				rc.Send(i)
			}
		}()
	}

	done := make(chan int)
	go func() {
		n := 0
		for range rc.C() {
			n++
		}
		done <- n
	}()

	wg.Wait()
	rc.Close()
	received := <-done

	m := rc.GetMetrics()
	assert.Equal(t, int64(4000), m.Written)
	assert.Equal(t, int64(received), m.Written-m.Overwritten)
}
