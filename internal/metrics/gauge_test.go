package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGauge(t *testing.T) {
	var g Gauge
	assert.Equal(t, int64(0), g.Value())

	g.Inc()
	g.Inc()
	assert.Equal(t, int64(2), g.Value())

	g.Dec()
	assert.Equal(t, int64(1), g.Value())
}

func TestGaugeConcurrent(t *testing.T) {
	var g Gauge
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 1000; n++ {
				g.Inc()
				g.Dec()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(0), g.Value())
}
