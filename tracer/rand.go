package tracer

import (
	"math/rand"
	"sync"
	"time"

	"github.com/uber/jaeger-client-go/utils"
)

var (
	seedGenerator = utils.NewRand(time.Now().UnixNano())
	sourcePool    = sync.Pool{
		New: func() interface{} {
			return rand.NewSource(seedGenerator.Int63())
		},
	}
)

// randomID returns a random positive 63 bit id.
func randomID() uint64 {

	generator := sourcePool.Get().(rand.Source)
	defer sourcePool.Put(generator)

	for {
		if id := uint64(generator.Int63()); id != 0 {
			return id
		}
	}
}
