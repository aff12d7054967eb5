package transport

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// CompletionFunc receives the outcome of a command: the raw result object on
// success, or a non-nil error. It is called exactly once, on the receive
// goroutine, a timer goroutine, or the goroutine that closes the transport.
type CompletionFunc func(result json.RawMessage, err error)

// pendingCommand is one in-flight command.
type pendingCommand struct {
	id       uint64
	method   string
	sent     time.Time
	complete CompletionFunc

	// timer is guarded by the table mutex.
	timer *time.Timer
}

// pendingTable correlates responses with in-flight commands. Every removal
// goes through take, so an entry is completed at most once regardless of
// which of response, timeout or teardown gets there first.
type pendingTable struct {
	mu      sync.Mutex
	entries map[uint64]*pendingCommand
	closed  bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[uint64]*pendingCommand)}
}

// register inserts p and, when timeout is positive, arms its deadline. It
// fails with ErrConnectionClosed once the table has been drained. A
// duplicate id is a programming error and panics.
func (t *pendingTable) register(p *pendingCommand, timeout time.Duration, onTimeout func(id uint64)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrConnectionClosed
	}
	if _, exists := t.entries[p.id]; exists {
		panic(fmt.Sprintf("transport: command id %d registered twice", p.id))
	}
	t.entries[p.id] = p
	if timeout > 0 {
		id := p.id
		p.timer = time.AfterFunc(timeout, func() { onTimeout(id) })
	}
	return nil
}

// take removes and returns the entry for id, stopping its timer.
func (t *pendingTable) take(id uint64) (*pendingCommand, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	delete(t.entries, id)
	if p.timer != nil {
		p.timer.Stop()
	}
	return p, true
}

// resolve completes id with result. It reports false for an orphan.
func (t *pendingTable) resolve(id uint64, result json.RawMessage) (*pendingCommand, bool) {
	p, ok := t.take(id)
	if !ok {
		return nil, false
	}
	p.complete(result, nil)
	return p, true
}

// fault completes id with err. It reports false for an orphan.
func (t *pendingTable) fault(id uint64, err error) (*pendingCommand, bool) {
	p, ok := t.take(id)
	if !ok {
		return nil, false
	}
	p.complete(nil, err)
	return p, true
}

// drainAll closes the table and faults every remaining entry with err. Only
// the first call drains; later calls return nil.
func (t *pendingTable) drainAll(err error) []*pendingCommand {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	drained := make([]*pendingCommand, 0, len(t.entries))
	for id, p := range t.entries {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(t.entries, id)
		drained = append(drained, p)
	}
	t.mu.Unlock()

	// Complete outside the lock; callbacks may send new commands.
	for _, p := range drained {
		p.complete(nil, err)
	}
	return drained
}

// len returns the number of in-flight commands.
func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
