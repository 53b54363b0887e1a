package dispatch

import "testing"

func queueIDs(q *taskQueue) []string {
	ids := make([]string, 0, q.len())
	for _, j := range q.items {
		ids = append(ids, j.id)
	}
	return ids
}

func assertIDs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestTaskQueueOrdering(t *testing.T) {
	q := &taskQueue{}
	q.pushBack(&job{id: "a"})
	q.pushBack(&job{id: "b"})
	q.pushFront(&job{id: "retry-1"})
	q.pushFront(&job{id: "retry-2"})
	q.pushBack(&job{id: "c"})

	assertIDs(t, queueIDs(q), []string{"retry-2", "retry-1", "a", "b", "c"})

	if j := q.popFront(); j.id != "retry-2" {
		t.Errorf("popFront = %s, want retry-2", j.id)
	}
	if q.len() != 4 {
		t.Errorf("len = %d, want 4", q.len())
	}
}

func TestTaskQueueRemove(t *testing.T) {
	q := &taskQueue{}
	for _, id := range []string{"a", "b", "c"} {
		q.pushBack(&job{id: id})
	}

	if !q.remove("b") {
		t.Fatal("remove(b) = false")
	}
	if q.remove("b") {
		t.Error("second remove(b) = true")
	}
	assertIDs(t, queueIDs(q), []string{"a", "c"})
}

func TestTaskQueueEmpty(t *testing.T) {
	q := &taskQueue{}
	if j := q.popFront(); j != nil {
		t.Errorf("popFront on empty queue = %v", j)
	}
	if q.remove("x") {
		t.Error("remove on empty queue = true")
	}

	q.pushBack(&job{id: "a"})
	q.pushBack(&job{id: "b"})
	if n := len(q.drain()); n != 2 {
		t.Errorf("drain returned %d jobs, want 2", n)
	}
	if q.len() != 0 {
		t.Errorf("len after drain = %d", q.len())
	}
}
