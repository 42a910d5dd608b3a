package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingAckOrder(t *testing.T) {
	tbl := newPendingTable()
	a := newPendingRequest()
	b := newPendingRequest()
	tbl.add(a)
	tbl.add(b)

	consumed, abandoned := tbl.ack("task-a")
	require.True(t, consumed)
	require.False(t, abandoned)
	consumed, _ = tbl.ack("task-b")
	require.True(t, consumed)
	assert.Equal(t, "task-a", a.taskID)
	assert.Equal(t, "task-b", b.taskID)

	consumed, _ = tbl.ack("task-c")
	assert.False(t, consumed, "ack with nothing awaiting must be refused")

	require.True(t, tbl.resolve("task-b", "second"))
	require.True(t, tbl.resolve("task-a", "first"))
	assert.Equal(t, "second", (<-b.done).answer)
	assert.Equal(t, "first", (<-a.done).answer)
	assert.Zero(t, tbl.size())
}

func TestPendingRemoveAfterResolve(t *testing.T) {
	tbl := newPendingTable()
	p := newPendingRequest()
	tbl.add(p)
	consumed, _ := tbl.ack("t-1")
	require.True(t, consumed)
	require.True(t, tbl.resolve("t-1", "done"))

	// The timed-out caller loses the race; the result is already queued.
	assert.False(t, tbl.remove(p))
	assert.Equal(t, "done", (<-p.done).answer)
}

func TestPendingRemoveUnacked(t *testing.T) {
	tbl := newPendingTable()
	p := newPendingRequest()
	tbl.add(p)

	require.True(t, tbl.remove(p))
	assert.Zero(t, tbl.size())
	assert.False(t, tbl.remove(p), "second withdrawal must be refused")

	// The slot still consumes its ack, flagged as abandoned.
	consumed, abandoned := tbl.ack("t-1")
	assert.True(t, consumed)
	assert.True(t, abandoned)
	assert.False(t, tbl.resolve("t-1", "late"), "withdrawn request must stay unresolvable")
}

// A withdrawn request must not shift later requests forward in the ack
// queue: the server assigns task ids strictly in request order, so the
// withdrawn slot has to soak up its own ack.
func TestPendingRemoveUnackedKeepsAckAlignment(t *testing.T) {
	tbl := newPendingTable()
	a := newPendingRequest()
	b := newPendingRequest()
	tbl.add(a)
	tbl.add(b)

	require.True(t, tbl.remove(a))

	consumed, abandoned := tbl.ack("task-a")
	require.True(t, consumed)
	require.True(t, abandoned)
	assert.Empty(t, b.taskID, "second request must not take the first one's task id")
	assert.False(t, tbl.resolve("task-a", "answer for the withdrawn request"))
	select {
	case res := <-b.done:
		t.Fatalf("second request resolved with someone else's result: %+v", res)
	default:
	}

	consumed, abandoned = tbl.ack("task-b")
	require.True(t, consumed)
	require.False(t, abandoned)
	require.True(t, tbl.resolve("task-b", "answer b"))
	assert.Equal(t, "answer b", (<-b.done).answer)
}

func TestPendingFailOldest(t *testing.T) {
	tbl := newPendingTable()
	a := newPendingRequest()
	b := newPendingRequest()
	tbl.add(a)
	tbl.add(b)

	cause := errors.New("refused")
	require.True(t, tbl.failOldest(cause))
	assert.Equal(t, cause, (<-a.done).err)

	// b is still awaiting its ack.
	consumed, _ := tbl.ack("t-b")
	require.True(t, consumed)
	assert.Equal(t, "t-b", b.taskID)
}

func TestPendingFailAll(t *testing.T) {
	tbl := newPendingTable()
	acked := newPendingRequest()
	waiting := newPendingRequest()
	tbl.add(acked)
	tbl.add(waiting)
	consumed, _ := tbl.ack("t-1")
	require.True(t, consumed)

	cause := &TransportError{Err: errors.New("connection reset")}
	tbl.failAll(cause)

	assert.Equal(t, cause, (<-acked.done).err)
	assert.Equal(t, cause, (<-waiting.done).err)
	assert.Zero(t, tbl.size())
}
