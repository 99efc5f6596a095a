package channels

import (
	"sync"
	"time"

	"github.com/casanet/remote-server/internal/protocol"
)

type outcome[T any] struct {
	value T
	err   error
}

type pendingEntry[T any] struct {
	createdAt time.Time
	done      chan outcome[T]
}

// settle completes the continuation. Entries are settled at most once since
// they are always removed from their table first.
func (e *pendingEntry[T]) settle(v T, err error) {
	e.done <- outcome[T]{value: v, err: err}
}

// pendingTable holds parked continuations by key. An entry replaced by a
// later park under the same key becomes an orphan: no reply can reach it,
// but it still expires.
type pendingTable[K comparable, T any] struct {
	mu      sync.Mutex
	entries map[K]*pendingEntry[T]
	orphans []keyed[K, T]
}

type keyed[K comparable, T any] struct {
	key   K
	entry *pendingEntry[T]
}

func newPendingTable[K comparable, T any]() *pendingTable[K, T] {
	return &pendingTable[K, T]{entries: make(map[K]*pendingEntry[T])}
}

func (t *pendingTable[K, T]) park(key K, now time.Time) *pendingEntry[T] {
	e := &pendingEntry[T]{createdAt: now, done: make(chan outcome[T], 1)}

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.entries[key]; ok {
		t.orphans = append(t.orphans, keyed[K, T]{key: key, entry: prev})
	}
	t.entries[key] = e
	return e
}

func (t *pendingTable[K, T]) take(key K) (*pendingEntry[T], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	return e, ok
}

// expire removes and returns every entry, orphans included, older than
// deadline.
func (t *pendingTable[K, T]) expire(now time.Time, deadline time.Duration) []keyed[K, T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []keyed[K, T]
	for k, e := range t.entries {
		if now.Sub(e.createdAt) > deadline {
			out = append(out, keyed[K, T]{key: k, entry: e})
			delete(t.entries, k)
		}
	}

	kept := t.orphans[:0]
	for _, o := range t.orphans {
		if now.Sub(o.entry.createdAt) > deadline {
			out = append(out, o)
		} else {
			kept = append(kept, o)
		}
	}
	t.orphans = kept
	return out
}

func (t *pendingTable[K, T]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries) + len(t.orphans)
}

// Correlator matches replies from local servers with the callers waiting on
// them. HTTP requests are keyed by a generated request id; log fetches are
// keyed by the local server identity, so only one per server can be
// answered: a second fetch replaces the first, which is left to time out.
type Correlator struct {
	now         func() time.Time
	httpTimeout time.Duration
	logsTimeout time.Duration

	http *pendingTable[string, *protocol.HTTPResponse]
	logs *pendingTable[string, string]
}

func NewCorrelator(httpTimeout, logsTimeout time.Duration) *Correlator {
	return &Correlator{
		now:         time.Now,
		httpTimeout: httpTimeout,
		logsTimeout: logsTimeout,
		http:        newPendingTable[string, *protocol.HTTPResponse](),
		logs:        newPendingTable[string, string](),
	}
}

func (c *Correlator) parkHTTP(requestID string) *pendingEntry[*protocol.HTTPResponse] {
	return c.http.park(requestID, c.now())
}

func (c *Correlator) parkLogs(identity string) *pendingEntry[string] {
	return c.logs.park(identity, c.now())
}

// ResolveHTTP hands resp to the caller waiting on resp.RequestID. Unknown
// or already reaped ids are dropped.
func (c *Correlator) ResolveHTTP(resp *protocol.HTTPResponse) bool {
	e, ok := c.http.take(resp.RequestID)
	if !ok {
		return false
	}
	e.settle(resp, nil)
	return true
}

// ResolveLogs hands data to the log fetch waiting on identity.
func (c *Correlator) ResolveLogs(identity, data string) bool {
	e, ok := c.logs.take(identity)
	if !ok {
		return false
	}
	e.settle(data, nil)
	return true
}

// Sweep times out stale entries. HTTP entries resolve with a synthetic 501
// response; log entries reject with a timeout error.
func (c *Correlator) Sweep() (httpExpired, logsExpired int) {
	now := c.now()

	for _, e := range c.http.expire(now, c.httpTimeout) {
		e.entry.settle(protocol.ErrorHTTPResponse(e.key, protocol.CodeTimeout, "local server timeout"), nil)
		httpExpired++
	}

	for _, e := range c.logs.expire(now, c.logsTimeout) {
		e.entry.settle("", &protocol.ErrorResponse{ResponseCode: protocol.CodeTimeout, Message: "local server timeout"})
		logsExpired++
	}

	return httpExpired, logsExpired
}

// Pending returns the number of outstanding HTTP and log requests.
func (c *Correlator) Pending() (http, logs int) {
	return c.http.len(), c.logs.len()
}
