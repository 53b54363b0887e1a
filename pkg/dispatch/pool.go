package dispatch

import (
	"fmt"
	"log/slog"
	"time"
)

// spawnFunc starts a fresh execution context for the given worker id.
type spawnFunc func(id string) (*execContext, error)

// workerPool owns the handles of one category. Lookups are linear; pools
// are sized by CPU count.
type workerPool struct {
	category string
	handles  []*workerHandle
	spawn    spawnFunc
	log      *slog.Logger
}

// newWorkerPool creates size workers. A worker that fails to start is
// logged and skipped, leaving the pool at reduced capacity.
func newWorkerPool(category string, size int, spawn spawnFunc, log *slog.Logger) *workerPool {
	p := &workerPool{
		category: category,
		handles:  make([]*workerHandle, 0, size),
		spawn:    spawn,
		log:      log,
	}

	for i := 0; i < size; i++ {
		id := workerID(category, i)
		exec, err := spawn(id)
		if err != nil {
			log.Error("failed to create worker", "category", category, "worker_id", id, "error", err)
			continue
		}
		p.handles = append(p.handles, &workerHandle{
			id:        id,
			category:  category,
			createdAt: time.Now(),
			exec:      exec,
		})
		log.Debug("created worker", "category", category, "worker_id", id)
	}

	return p
}

func workerID(category string, i int) string {
	return fmt.Sprintf("%s-%d", category, i)
}

// findIdle returns the first idle handle, or nil.
func (p *workerPool) findIdle() *workerHandle {
	for _, h := range p.handles {
		if !h.busy {
			return h
		}
	}
	return nil
}

func (p *workerPool) get(id string) *workerHandle {
	for _, h := range p.handles {
		if h.id == id {
			return h
		}
	}
	return nil
}

// replace swaps the execution context behind id for a fresh one. The handle
// keeps its id and lifetime counters. If the new context cannot be created
// the handle is dropped from the pool. Replacing an unknown id is an error.
func (p *workerPool) replace(id string) (*workerHandle, error) {
	h := p.get(id)
	if h == nil {
		return nil, fmt.Errorf("worker %s is not in pool %s", id, p.category)
	}

	func() {
		defer func() { _ = recover() }()
		h.exec.terminate()
	}()

	exec, err := p.spawn(id)
	if err != nil {
		p.remove(id)
		return nil, err
	}

	h.exec = exec
	h.busy = false
	h.currentJob = ""
	h.createdAt = time.Now()
	return h, nil
}

func (p *workerPool) remove(id string) {
	for i, h := range p.handles {
		if h.id == id {
			p.handles = append(p.handles[:i], p.handles[i+1:]...)
			return
		}
	}
}

func (p *workerPool) active() int {
	n := 0
	for _, h := range p.handles {
		if h.busy {
			n++
		}
	}
	return n
}

func (p *workerPool) size() int {
	return len(p.handles)
}

// terminate stops every execution context in the pool.
func (p *workerPool) terminate() {
	for _, h := range p.handles {
		h.exec.terminate()
	}
}
