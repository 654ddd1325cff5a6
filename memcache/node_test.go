package memcache

import (
	. "gopkg.in/check.v1"
)

// fakeTransport is a minimal Transport double for Node-level tests: no
// sockets, just enough behavior (refuse/accept, report itself available) to
// exercise Node's pool bookkeeping in isolation from Transport's own I/O.
type fakeTransport struct {
	endpoint string
	refuse   bool
	sent     []Request
}

func (t *fakeTransport) TrySend(req Request) bool {
	if t.refuse {
		return false
	}
	t.sent = append(t.sent, req)
	return true
}
func (t *fakeTransport) Shutdown(callback func()) {
	if callback != nil {
		callback()
	}
}
func (t *fakeTransport) Dispose()        {}
func (t *fakeTransport) Endpoint() string { return t.endpoint }

// newFakeTransportFactory returns a Config.TransportFactory that hands out
// fakeTransports, immediately registering and admitting each one so Node's
// pool is populated synchronously -- real NewTransport does this
// asynchronously over a goroutine, which would make these tests racy for no
// benefit.
func newFakeTransportFactory(transports *[]*fakeTransport) func(
	endpoint string, cfg *Config, observer Observer,
	onRegister func(Transport), onAvailable func(Transport),
	nodeClosing func() bool) Transport {

	return func(endpoint string, cfg *Config, observer Observer,
		onRegister func(Transport), onAvailable func(Transport),
		nodeClosing func() bool) Transport {

		ft := &fakeTransport{endpoint: endpoint}
		*transports = append(*transports, ft)
		onRegister(ft)
		onAvailable(ft)
		return ft
	}
}

type NodeSuite struct{}

var _ = Suite(&NodeSuite{})

func (s *NodeSuite) TestTrySendUsesAnAvailableTransport(c *C) {
	var transports []*fakeTransport
	cfg := Config{PoolSize: 1, TransportFactory: newFakeTransportFactory(&transports)}.withDefaults()
	n := NewNode("host:1", cfg, cfg.Observer)

	req := newGetRequest("k", 0, AnyOK)
	c.Assert(n.TrySend(req), Equals, true)
	c.Assert(transports[0].sent, DeepEquals, []Request{req})
}

func (s *NodeSuite) TestTrySendFailsAndMarksDeadWhenPoolEmpty(c *C) {
	cfg := Config{
		PoolSize: 1,
		TransportFactory: func(endpoint string, cfg *Config, observer Observer,
			onRegister func(Transport), onAvailable func(Transport),
			nodeClosing func() bool) Transport {
			ft := &fakeTransport{endpoint: endpoint}
			onRegister(ft) // never admitted -- pool stays empty
			return ft
		},
	}.withDefaults()
	n := NewNode("host:1", cfg, cfg.Observer)

	c.Assert(n.IsDead(), Equals, false)
	c.Assert(n.TrySend(newGetRequest("k", 0, AnyOK)), Equals, false)
	c.Assert(n.IsDead(), Equals, true)
}

func (s *NodeSuite) TestTrySendFallsThroughToNextTransportOnRefusal(c *C) {
	var transports []*fakeTransport
	factory := newFakeTransportFactory(&transports)
	cfg := Config{PoolSize: 2, TransportFactory: factory}.withDefaults()
	n := NewNode("host:1", cfg, cfg.Observer)
	transports[1].refuse = true // LIFO: this one pops first

	req := newGetRequest("k", 0, AnyOK)
	c.Assert(n.TrySend(req), Equals, true)
	c.Assert(transports[0].sent, DeepEquals, []Request{req})
	c.Assert(transports[1].sent, HasLen, 0)
}

func (s *NodeSuite) TestOnDeadChangedFiresOnTransition(c *C) {
	var transports []*fakeTransport
	cfg := Config{
		PoolSize: 1,
		TransportFactory: func(endpoint string, cfg *Config, observer Observer,
			onRegister func(Transport), onAvailable func(Transport),
			nodeClosing func() bool) Transport {
			ft := &fakeTransport{endpoint: endpoint}
			transports = append(transports, ft)
			onRegister(ft) // not admitted yet
			return ft
		},
	}.withDefaults()
	n := NewNode("host:1", cfg, cfg.Observer)

	var changes []bool
	n.OnDeadChanged(func(n Node) { changes = append(changes, n.IsDead()) })

	n.TrySend(newGetRequest("k", 0, AnyOK)) // pool empty -> dead
	c.Assert(changes, DeepEquals, []bool{true})

	n.(*node).admit(transports[0]) // transport joins pool -> alive again
	c.Assert(changes, DeepEquals, []bool{true, false})
}
