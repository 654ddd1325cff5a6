package memcache

import (
	"sync"
	"time"

	"github.com/awesomedotnetcore/memcache-driver/sync2"
)

// AdminState is an operator-controlled override on top of a Node's own
// liveness tracking, supplementing spec.md with the four-state model
// base_shard_manager.go's MemcachedState uses for shard administration.
type AdminState int32

const (
	// ActiveServer carries ordinary traffic.
	ActiveServer AdminState = iota
	// WriteOnlyServer is excluded from Cluster.Dispatch routing. Dispatch
	// does not tell reads from writes, so no request of either kind is
	// sent to such a node.
	WriteOnlyServer
	// DownServer is excluded from routing entirely.
	DownServer
	// WarmUpServer is a node that has joined the cluster but is still
	// loading data; like DownServer it is excluded from routing.
	WarmUpServer
)

// Node owns a bounded pool of Transports to one memcached endpoint and picks
// an available one for each send, per spec.md §4.5. Grounded on
// base_shard_manager.go's per-shard state tracking, reworked from its
// polling health-check model into the push-based available-pool model
// spec.md describes.
type Node interface {
	// TrySend hands req to one available transport, retrying against
	// another available transport if the first refuses. Returns false (and
	// fails req) if no transport could take it.
	TrySend(req Request) bool

	// IsDead reports whether the last TrySend found the pool empty. It
	// flips back to false the moment any transport re-joins the pool.
	IsDead() bool

	// AdminState/SetAdminState hold the operator override described above;
	// Cluster.Dispatch consults it for each node the locator returned.
	AdminState() AdminState
	SetAdminState(AdminState)

	// Endpoint returns "host:port" for this node.
	Endpoint() string

	// OnDeadChanged registers a hook invoked whenever IsDead's value flips,
	// in either direction. Cluster uses this to drive its own
	// NodeStateChanged hook (see cluster.go).
	OnDeadChanged(cb func(Node))

	// Shutdown drains every transport (best-effort QUIT, then force-dispose
	// after Config.ShutdownGracePeriod) and blocks until done.
	Shutdown()
}

type node struct {
	endpoint string
	cfg      *Config
	observer Observer

	mu         sync.Mutex
	transports []Transport
	available  []Transport

	dead       sync2.AtomicBool
	closing    sync2.AtomicBool
	adminState sync2.AtomicInt32

	deadChangeMu sync.Mutex
	onDeadChange func(Node)
}

// NewNode builds a Node and starts Config.PoolSize transports connecting to
// endpoint in the background.
func NewNode(endpoint string, cfg *Config, observer Observer) Node {
	n := &node{endpoint: endpoint, cfg: cfg, observer: observer}
	for i := 0; i < cfg.PoolSize; i++ {
		n.spawnTransport()
	}
	return n
}

func (n *node) spawnTransport() {
	factory := n.cfg.TransportFactory
	if factory == nil {
		factory = NewTransport
	}
	factory(n.endpoint, n.cfg, n.observer, n.register, n.admit, n.isClosing)
}

func (n *node) register(t Transport) {
	n.mu.Lock()
	n.transports = append(n.transports, t)
	n.mu.Unlock()
}

func (n *node) admit(t Transport) {
	n.mu.Lock()
	n.available = append(n.available, t)
	n.mu.Unlock()
	n.setDead(false)
}

func (n *node) isClosing() bool { return n.closing.Get() }

func (n *node) popAvailable() Transport {
	n.mu.Lock()
	defer n.mu.Unlock()
	l := len(n.available)
	if l == 0 {
		return nil
	}
	t := n.available[l-1]
	n.available = n.available[:l-1]
	return t
}

// TrySend owns the single terminal Fail() call for req: each candidate
// transport's TrySend only reports accept/refuse, so this loop -- not any
// one transport -- is what decides the request has truly failed, once every
// available transport has refused it.
func (n *node) TrySend(req Request) bool {
	for {
		t := n.popAvailable()
		if t == nil {
			req.Fail()
			n.setDead(true)
			return false
		}
		if t.TrySend(req) {
			return true
		}
		// t refused (backpressure, or it just discovered it's dead) and is
		// already off the available stack; try the next one.
	}
}

func (n *node) IsDead() bool { return n.dead.Get() }

func (n *node) setDead(v bool) {
	if !n.dead.CompareAndSwap(!v, v) {
		return
	}
	n.deadChangeMu.Lock()
	cb := n.onDeadChange
	n.deadChangeMu.Unlock()
	if cb != nil {
		cb(n)
	}
}

func (n *node) AdminState() AdminState    { return AdminState(n.adminState.Get()) }
func (n *node) SetAdminState(s AdminState) { n.adminState.Set(int32(s)) }

func (n *node) Endpoint() string { return n.endpoint }

func (n *node) OnDeadChanged(cb func(Node)) {
	n.deadChangeMu.Lock()
	n.onDeadChange = cb
	n.deadChangeMu.Unlock()
}

func (n *node) Shutdown() {
	n.closing.Set(true)

	n.mu.Lock()
	transports := append([]Transport(nil), n.transports...)
	n.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		tt := t
		go func() {
			// wg.Done runs when the QUIT reply arrives (or at once if the
			// transport is already dead or the QUIT could not be sent).
			tt.Shutdown(wg.Done)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(n.cfg.ShutdownGracePeriod):
		n.mu.Lock()
		remaining := append([]Transport(nil), n.transports...)
		n.mu.Unlock()
		for _, t := range remaining {
			t.Dispose()
		}
	}
}
