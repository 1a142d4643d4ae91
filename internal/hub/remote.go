package hub

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gridrun/server/internal/sim"
)

// Conn is the write surface the hub needs from a subscriber connection.
// *websocket.Conn satisfies it; tests substitute an in-memory fake.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var errNotAttached = errors.New("hub: no connection attached")

// Remote is one client session: the identity minted at join plus the
// connection currently attached to it. The session outlives reconnects; the
// conn slot is swapped while the token and net id stay stable.
type Remote struct {
	token    string
	netID    sim.PlayerNetID
	nickname string

	writeMu   sync.Mutex
	conn      Conn
	writeWait time.Duration

	lastCommandSeq atomic.Uint64
	lastAck        atomic.Uint64

	// Heartbeat bookkeeping, guarded by the hub mutex.
	lastHeartbeat time.Time
	lastRTT       time.Duration
}

// Token returns the opaque session token issued at join.
func (r *Remote) Token() string {
	return r.token
}

// NetID returns the player identity the session commands act as.
func (r *Remote) NetID() sim.PlayerNetID {
	return r.netID
}

// Nickname returns the display name given at join.
func (r *Remote) Nickname() string {
	return r.nickname
}

// LastCommandSeq returns the highest acknowledged client command sequence.
func (r *Remote) LastCommandSeq() uint64 {
	return r.lastCommandSeq.Load()
}

// StoreLastCommandSeq records the highest acknowledged client command
// sequence, used to drop replayed commands idempotently.
func (r *Remote) StoreLastCommandSeq(seq uint64) {
	r.lastCommandSeq.Store(seq)
}

// LastAck returns the newest broadcast sequence the client confirmed.
func (r *Remote) LastAck() uint64 {
	return r.lastAck.Load()
}

// Send writes one text frame under the per-connection write lock, bounding
// the write with the configured deadline so one stalled peer cannot wedge a
// broadcast pass.
func (r *Remote) Send(data []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.conn == nil {
		return errNotAttached
	}
	r.conn.SetWriteDeadline(time.Now().Add(r.writeWait))
	return r.conn.WriteMessage(websocket.TextMessage, data)
}

// attach swaps in a new connection and returns the previous one so the
// caller can close it outside the lock.
func (r *Remote) attach(conn Conn) Conn {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	old := r.conn
	r.conn = conn
	return old
}

// detach removes the connection, returning it for closing.
func (r *Remote) detach() Conn {
	return r.attach(nil)
}

// attached reports whether a connection is currently bound to the session.
func (r *Remote) attached() bool {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.conn != nil
}
