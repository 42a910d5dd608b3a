package agent

import "sync"

type askResult struct {
	answer string
	err    error
}

// pendingRequest tracks one in-flight Ask. The task id is assigned by the
// server and stays empty until the request-received ack arrives. A request
// withdrawn before its ack is marked abandoned but keeps its queue slot:
// the slot must still consume the server's ack, or every later ack would
// re-key the wrong request.
type pendingRequest struct {
	taskID    string
	abandoned bool
	done      chan askResult // buffered, written to exactly once
}

func newPendingRequest() *pendingRequest {
	return &pendingRequest{done: make(chan askResult, 1)}
}

// pendingTable holds every in-flight request. Requests wait in FIFO order
// until the server acknowledges them with a task id; acks are matched to
// the oldest unacknowledged request, which the single-connection ordering
// guarantee makes sound. Each request is resolved exactly once: whichever
// of resolve/fail/remove wins the table entry delivers the result.
type pendingTable struct {
	mu       sync.Mutex
	awaiting []*pendingRequest
	byTask   map[string]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{byTask: make(map[string]*pendingRequest)}
}

func (t *pendingTable) add(p *pendingRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.awaiting = append(t.awaiting, p)
}

// ack consumes the oldest queue slot and, unless the caller already gave
// up on it, re-keys the request by its server-assigned task id. consumed
// is false when nothing was waiting for an ack; abandoned reports that
// the slot belonged to a withdrawn request, whose task should be
// cancelled upstream.
func (t *pendingTable) ack(taskID string) (consumed, abandoned bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.awaiting) == 0 {
		return false, false
	}
	p := t.awaiting[0]
	t.awaiting = t.awaiting[1:]
	if p.abandoned {
		return true, true
	}
	p.taskID = taskID
	t.byTask[taskID] = p
	return true, false
}

func (t *pendingTable) resolve(taskID, answer string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byTask[taskID]
	if !ok {
		return false
	}
	delete(t.byTask, taskID)
	p.done <- askResult{answer: answer}
	return true
}

func (t *pendingTable) fail(taskID string, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byTask[taskID]
	if !ok {
		return false
	}
	delete(t.byTask, taskID)
	p.done <- askResult{err: err}
	return true
}

// failOldest rejects the oldest unacknowledged request. Used for error
// events that carry no task id, which the server emits when it refuses a
// request before assigning one. An abandoned slot still consumes the
// error; its caller is gone.
func (t *pendingTable) failOldest(err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.awaiting) == 0 {
		return false
	}
	p := t.awaiting[0]
	t.awaiting = t.awaiting[1:]
	if !p.abandoned {
		p.done <- askResult{err: err}
	}
	return true
}

// remove withdraws a request on timeout or cancellation. Returns false
// when the request was already resolved, in which case the result is
// sitting in p.done. An unacked request keeps its queue slot, flagged
// abandoned, so later acks still line up with their requests.
func (t *pendingTable) remove(p *pendingRequest) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p.taskID != "" {
		if cur, ok := t.byTask[p.taskID]; ok && cur == p {
			delete(t.byTask, p.taskID)
			return true
		}
		return false
	}
	for _, q := range t.awaiting {
		if q == p && !q.abandoned {
			q.abandoned = true
			return true
		}
	}
	return false
}

// failAll rejects every pending request with the same error. Called when
// the transport drops; abandoned slots are simply discarded.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.awaiting {
		if !p.abandoned {
			p.done <- askResult{err: err}
		}
	}
	t.awaiting = nil
	for id, p := range t.byTask {
		p.done <- askResult{err: err}
		delete(t.byTask, id)
	}
}

// size counts requests with a live caller.
func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.byTask)
	for _, p := range t.awaiting {
		if !p.abandoned {
			n++
		}
	}
	return n
}
