package window

import "sync"

// worker runs jobs one at a time in submission order. The queue is
// unbounded so the transport read loop never blocks on a slow callback.
type worker struct {
	mu      sync.Mutex
	jobs    []func()
	wake    chan struct{}
	stopped bool
	done    chan struct{}
}

func newWorker() *worker {
	w := &worker{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) submit(job func()) bool {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return false
	}
	w.jobs = append(w.jobs, job)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// stop lets queued jobs finish and then ends the loop.
func (w *worker) stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) loop() {
	defer close(w.done)
	for {
		w.mu.Lock()
		jobs := w.jobs
		w.jobs = nil
		stopped := w.stopped
		w.mu.Unlock()

		for _, job := range jobs {
			job()
		}
		if len(jobs) == 0 {
			if stopped {
				return
			}
			<-w.wake
		}
	}
}
