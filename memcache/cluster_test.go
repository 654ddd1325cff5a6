package memcache

import (
	. "gopkg.in/check.v1"
)

// deadNotifyingNode is a fakeNode that actually remembers its OnDeadChanged
// callback, so tests can trigger it directly instead of wiring up a whole
// fake transport pool just to flip Node.IsDead().
type deadNotifyingNode struct {
	*fakeNode
	cb func(Node)
}

func (n *deadNotifyingNode) OnDeadChanged(cb func(Node)) { n.cb = cb }
func (n *deadNotifyingNode) trigger()                    { n.cb(n) }

type ClusterSuite struct{}

var _ = Suite(&ClusterSuite{})

func (s *ClusterSuite) TestDispatchSendsToLocatedNode(c *C) {
	a := newFakeNode("a")
	loc := NewRoundRobinLocator([]Node{a})
	cluster := NewCluster(loc, []Node{a})

	var fired ResponseStatus
	req := NewAggregatingRequest(
		EncodeRequest(OpGet, 0, 0, 0, nil, []byte("k"), nil), 0, 0, AnyOK,
		func(status ResponseStatus, key, extras, value []byte) { fired = status })

	cluster.Dispatch(req)
	c.Assert(fired, Equals, ResponseStatus(0)) // fakeNode.TrySend accepts, never calls back
}

func (s *ClusterSuite) TestDispatchFailsSlotsTheLocatorCouldNotFill(c *C) {
	nodes := []Node{newFakeNode("a")}
	loc := NewRoundRobinLocator(nodes)
	cluster := NewCluster(loc, nodes)

	var statuses []ResponseStatus
	req := NewAggregatingRequest(
		EncodeRequest(OpGet, 0, 0, 0, nil, []byte("k"), nil), 0, 2 /* replicas */, AnyOK,
		func(status ResponseStatus, key, extras, value []byte) { statuses = append(statuses, status) })

	cluster.Dispatch(req)
	// Only 1 node exists for 3 requested slots; the other 2 are Fail()ed.
	// fakeNode.TrySend returns true without delivering a reply, so after
	// Dispatch 2 of the 3 events have arrived and the callback has not fired.
	c.Assert(statuses, HasLen, 0)
	// The third event (the real node's reply, here a failure) completes the
	// count; the callback fires exactly once.
	req.Fail()
	c.Assert(statuses, DeepEquals, []ResponseStatus{StatusInternalError})
}

func (s *ClusterSuite) TestDispatchSkipsAdministrativelyExcludedNodes(c *C) {
	a := newFakeNode("a")
	a.SetAdminState(DownServer)
	loc := NewRoundRobinLocator([]Node{a})
	// RoundRobinLocator itself only filters IsDead, not AdminState -- an
	// admin-excluded-but-alive node is still "located" and Cluster.Dispatch
	// is the one that must refuse to send to it.
	cluster := NewCluster(loc, []Node{a})

	var statuses []ResponseStatus
	req := NewAggregatingRequest(
		EncodeRequest(OpGet, 0, 0, 0, nil, []byte("k"), nil), 0, 0, AnyOK,
		func(status ResponseStatus, key, extras, value []byte) { statuses = append(statuses, status) })

	cluster.Dispatch(req)
	c.Assert(statuses, DeepEquals, []ResponseStatus{StatusInternalError})
	c.Assert(a.sentTo, Equals, false)
}

func (s *ClusterSuite) TestNodeStateChangedForwardsToCluster(c *C) {
	n := &deadNotifyingNode{fakeNode: newFakeNode("a")}
	cluster := NewCluster(NewRoundRobinLocator([]Node{n}), []Node{n})

	var seen Node
	cluster.OnNodeStateChanged = func(n Node) { seen = n }

	n.trigger()
	c.Assert(seen, Equals, Node(n))
}
