package csv

import (
	"runtime"
	"sync"
)

// The decode pool is shared process-wide: column decode work from all
// concurrent reads funnels through the same GOMAXPROCS workers, so CPU
// parallelism stays bounded no matter how many files are in flight.
var decodePool struct {
	once  sync.Once
	tasks chan func()
}

func submitDecode(task func()) {
	decodePool.once.Do(func() {
		decodePool.tasks = make(chan func())
		for i := 0; i < runtime.GOMAXPROCS(0); i++ {
			go poolWorker(decodePool.tasks)
		}
	})
	decodePool.tasks <- task
}

func poolWorker(tasks <-chan func()) {
	for task := range tasks {
		task()
	}
}
