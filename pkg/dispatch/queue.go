package dispatch

// taskQueue is the per-category backlog. Fresh jobs join the back; retried
// jobs join the front so failed work is not starved by new submissions.
type taskQueue struct {
	items []*job
}

func (q *taskQueue) pushBack(j *job) {
	q.items = append(q.items, j)
}

func (q *taskQueue) pushFront(j *job) {
	q.items = append(q.items, nil)
	copy(q.items[1:], q.items)
	q.items[0] = j
}

func (q *taskQueue) popFront() *job {
	if len(q.items) == 0 {
		return nil
	}
	j := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return j
}

// remove drops the job with id, reporting whether it was queued.
func (q *taskQueue) remove(id string) bool {
	for i, j := range q.items {
		if j.id == id {
			copy(q.items[i:], q.items[i+1:])
			q.items[len(q.items)-1] = nil
			q.items = q.items[:len(q.items)-1]
			return true
		}
	}
	return false
}

func (q *taskQueue) len() int {
	return len(q.items)
}

func (q *taskQueue) drain() []*job {
	items := q.items
	q.items = nil
	return items
}
