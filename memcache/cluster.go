package memcache

// Cluster is the thin façade tying a Locator to the set of Nodes it routes
// across, per spec.md §4.7. It owns no retry logic beyond what Locate and
// Node.TrySend already provide -- a request that can't be sent to one of its
// chosen nodes is simply failed for that slot.
type Cluster struct {
	locator Locator
	nodes   []Node

	// OnNodeStateChanged, if set, is invoked whenever any Node's dead flag
	// flips in either direction -- the hook SPEC_FULL.md §4.7 calls
	// NodeStateChanged. Cluster itself only relays it; callers decide what
	// a topology health change should do (log it, trigger a config
	// refresh, etc).
	OnNodeStateChanged func(Node)
}

// NewCluster wires locator against nodes and subscribes to each node's dead-
// flag transitions.
func NewCluster(locator Locator, nodes []Node) *Cluster {
	c := &Cluster{locator: locator, nodes: nodes}
	for _, n := range nodes {
		n.OnDeadChanged(c.nodeStateChanged)
	}
	return c
}

func (c *Cluster) nodeStateChanged(n Node) {
	if c.OnNodeStateChanged != nil {
		c.OnNodeStateChanged(n)
	}
}

// Dispatch asks the locator for req.Replicas()+1 nodes and sends req to each
// in turn, skipping any the operator has administratively excluded
// (WriteOnlyServer/DownServer/WarmUpServer -- see AdminState). Any slot the
// locator couldn't fill, or whose node refused the send, is failed so the
// request's own aggregation (AggregatingRequest) still converges.
func (c *Cluster) Dispatch(req Request) {
	targets := c.locator.Locate(req)

	for _, n := range targets {
		switch n.AdminState() {
		case WriteOnlyServer, DownServer, WarmUpServer:
			req.Fail()
			continue
		}
		// Node.TrySend already calls req.Fail() on refusal; nothing more
		// to do here either way.
		n.TrySend(req)
	}

	want := replicaCount(req)
	for i := len(targets); i < want; i++ {
		req.Fail()
	}
}

// Nodes returns the cluster's node set, in locator-registration order.
func (c *Cluster) Nodes() []Node { return c.nodes }

// Shutdown drains every node (see Node.Shutdown) and blocks until each has
// finished or its grace period elapsed.
func (c *Cluster) Shutdown() {
	for _, n := range c.nodes {
		n.Shutdown()
	}
}
