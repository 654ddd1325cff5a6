package memcache

import (
	. "gopkg.in/check.v1"
)

// fakeNode is a bare-bones Node stand-in for locator tests -- it never
// actually dials anything, it just remembers its endpoint and a dead flag a
// test can flip.
type fakeNode struct {
	endpoint   string
	dead       bool
	adminState AdminState
	sentTo     bool
}

func newFakeNode(endpoint string) *fakeNode { return &fakeNode{endpoint: endpoint} }

func (n *fakeNode) TrySend(req Request) bool {
	n.sentTo = true
	return !n.dead
}
func (n *fakeNode) IsDead() bool             { return n.dead }
func (n *fakeNode) AdminState() AdminState   { return n.adminState }
func (n *fakeNode) SetAdminState(s AdminState) { n.adminState = s }
func (n *fakeNode) Endpoint() string         { return n.endpoint }
func (n *fakeNode) OnDeadChanged(func(Node)) {}
func (n *fakeNode) Shutdown()                {}

func newGetRequest(key string, replicas uint8, policy ReplicaPolicy) *AggregatingRequest {
	buf := EncodeRequest(OpGet, 0, 0, 0, nil, []byte(key), nil)
	return NewAggregatingRequest(buf, 0, replicas, policy, nil)
}

type LocatorSuite struct{}

var _ = Suite(&LocatorSuite{})

func (s *LocatorSuite) TestRoundRobinCyclesAndSkipsDead(c *C) {
	a, b, cNode := newFakeNode("a"), newFakeNode("b"), newFakeNode("c")
	b.dead = true
	loc := NewRoundRobinLocator([]Node{a, b, cNode})

	var seen []Node
	for i := 0; i < 4; i++ {
		got := loc.Locate(newGetRequest("k", 0, AnyOK))
		c.Assert(got, HasLen, 1)
		seen = append(seen, got[0])
		c.Assert(got[0].IsDead(), Equals, false)
	}
	for _, n := range seen {
		c.Assert(n, Not(Equals), Node(b))
	}
}

func (s *LocatorSuite) TestRoundRobinReturnsEmptyWhenAllDead(c *C) {
	a := newFakeNode("a")
	a.dead = true
	loc := NewRoundRobinLocator([]Node{a})
	c.Assert(loc.Locate(newGetRequest("k", 0, AnyOK)), HasLen, 0)
}

func (s *LocatorSuite) TestRoundRobinReplicationReturnsDistinctNodes(c *C) {
	nodes := []Node{newFakeNode("a"), newFakeNode("b"), newFakeNode("c")}
	loc := NewRoundRobinLocator(nodes)
	got := loc.Locate(newGetRequest("k", 2, AnyOK))
	c.Assert(got, HasLen, 3)
	seen := map[Node]bool{}
	for _, n := range got {
		c.Assert(seen[n], Equals, false)
		seen[n] = true
	}
}

// spec.md §8 scenario 6: "XXXXX" hashes to 13701, bucket 13701 mod 1024 =
// 389, owner 389 mod 3 = nodes[2].
func (s *LocatorSuite) TestVBucketServerMapMatchesSpecExample(c *C) {
	nodes := []Node{newFakeNode("n0"), newFakeNode("n1"), newFakeNode("n2")}
	table := make([][]int32, 1024)
	for i := range table {
		table[i] = []int32{int32(i % 3)}
	}
	loc := NewVBucketServerMap(nodes, table)

	req := newGetRequest("XXXXX", 0, AnyOK)
	got := loc.Locate(req)
	c.Assert(got, HasLen, 1)
	c.Assert(got[0], Equals, nodes[1])
	c.Assert(req.VBucket(), Equals, uint16(133))
}

func (s *LocatorSuite) TestVBucketServerMapSkipsUnassignedSlots(c *C) {
	nodes := []Node{newFakeNode("n0"), newFakeNode("n1")}
	table := [][]int32{{-1, 1}}
	loc := NewVBucketServerMap(nodes, table)

	req := newGetRequest("anything", 1, AnyOK)
	got := loc.Locate(req)
	c.Assert(got, DeepEquals, []Node{nodes[1]})
}

func (s *LocatorSuite) TestKetamaRoutesSameKeyToSameNodeConsistently(c *C) {
	nodes := []Node{newFakeNode("10.0.0.1:11211"), newFakeNode("10.0.0.2:11211"), newFakeNode("10.0.0.3:11211")}
	loc := NewKetamaLocator(nodes)

	first := loc.Locate(newGetRequest("stable-key", 0, AnyOK))
	second := loc.Locate(newGetRequest("stable-key", 0, AnyOK))
	c.Assert(first, DeepEquals, second)
}

func (s *LocatorSuite) TestKetamaReplicationReturnsDistinctNodes(c *C) {
	nodes := []Node{newFakeNode("a:1"), newFakeNode("b:1"), newFakeNode("c:1")}
	loc := NewKetamaLocator(nodes)

	got := loc.Locate(newGetRequest("k", 2, AnyOK))
	c.Assert(got, HasLen, 3)
	seen := map[Node]bool{}
	for _, n := range got {
		c.Assert(seen[n], Equals, false)
		seen[n] = true
	}
}

func (s *LocatorSuite) TestKetamaBuildsFullPointSet(c *C) {
	loc := NewKetamaLocator([]Node{newFakeNode("a:1")})
	c.Assert(loc.points, HasLen, ketamaPointsPerNode*ketamaWordsPerDigest)
}
