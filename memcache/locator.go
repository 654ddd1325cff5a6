package memcache

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"
	"sync/atomic"
)

// Locator picks which Node(s) should serve a Request: req.Replicas()+1 of
// them, most-preferred first. Grounded on spec.md §4.6's three locator
// variants plus hash2/hashring.go for the Ketama ring mechanics.
type Locator interface {
	Locate(req Request) []Node
}

// requestKey pulls the raw key bytes straight out of a Request's already-
// encoded QueryBuffer(), rather than widening the Request interface with a
// Key() accessor spec.md §3 never asks for. The key sits at a fixed,
// computable offset in any buffer EncodeRequest produced: right after the
// 24-byte header and whatever extras precede it.
func requestKey(req Request) []byte {
	buf := req.QueryBuffer()
	if len(buf) < headerLength {
		return nil
	}
	keyLen := int(binary.BigEndian.Uint16(buf[2:4]))
	extrasLen := int(buf[4])
	start := headerLength + extrasLen
	end := start + keyLen
	if start < 0 || end > len(buf) {
		return nil
	}
	return buf[start:end]
}

// replicaCount returns how many distinct nodes Locate should try to return
// for req: the primary plus its replicas.
func replicaCount(req Request) int {
	return int(req.Replicas()) + 1
}

// ---------------------------------------------------------------------------
// RoundRobinLocator

// RoundRobinLocator cycles through a fixed node list, skipping dead nodes,
// ignoring the request's key entirely. Grounded on static_shard_manager.go's
// "just iterate the configured list" simplicity, adapted to skip dead nodes
// the way base_shard_manager.go's health tracking implies a caller should.
type RoundRobinLocator struct {
	nodes   []Node
	counter int64
}

func NewRoundRobinLocator(nodes []Node) *RoundRobinLocator {
	return &RoundRobinLocator{nodes: append([]Node(nil), nodes...)}
}

// Locate advances the counter once per call (even if every node turns out
// dead) and returns up to replicas()+1 distinct live nodes, probing forward
// from the new counter value. This generalizes spec.md §4.6's single-node
// description to the replicated case -- see SPEC_FULL.md §4.6.
func (l *RoundRobinLocator) Locate(req Request) []Node {
	n := len(l.nodes)
	if n == 0 {
		return nil
	}

	want := replicaCount(req)
	if want > n {
		want = n
	}

	start := int(atomic.AddInt64(&l.counter, 1))
	result := make([]Node, 0, want)
	for probe := 0; probe < n && len(result) < want; probe++ {
		idx := ((start+probe)%n + n) % n
		if node := l.nodes[idx]; !node.IsDead() {
			result = append(result, node)
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// KetamaLocator

type ketamaPoint struct {
	hash uint32
	node Node
}

// KetamaLocator is a consistent-hashing ring: each node gets 160 points
// (4 words from each of 40 "endpoint-i" MD5 digests), and a key is routed to
// the node owning the first point at or past its own MD5 hash, wrapping
// around the ring. Ported from hash2/hashring.go with two fixes spec.md §8's
// test vectors require: all 4 digest words per iteration (the teacher's
// hashring.go only used 3, giving 120 points/node) and a "first point >= key
// hash" search (the teacher's comparator was strictly greater, which drops
// the key landing exactly on a point to the next node instead of that one).
type KetamaLocator struct {
	points []ketamaPoint
}

const ketamaPointsPerNode = 40
const ketamaWordsPerDigest = 4

func NewKetamaLocator(nodes []Node) *KetamaLocator {
	l := &KetamaLocator{}
	for _, n := range nodes {
		for i := 0; i < ketamaPointsPerNode; i++ {
			digest := md5.Sum([]byte(fmt.Sprintf("%s-%d", n.Endpoint(), i)))
			for w := 0; w < ketamaWordsPerDigest; w++ {
				l.points = append(l.points, ketamaPoint{
					hash: ketamaLittleEndianUint32(digest[w*4 : w*4+4]),
					node: n,
				})
			}
		}
	}
	sort.Slice(l.points, func(i, j int) bool { return l.points[i].hash < l.points[j].hash })
	return l
}

func ketamaLittleEndianUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (l *KetamaLocator) Locate(req Request) []Node {
	if len(l.points) == 0 {
		return nil
	}

	digest := md5.Sum(requestKey(req))
	keyHash := ketamaLittleEndianUint32(digest[0:4])

	pos := sort.Search(len(l.points), func(i int) bool { return l.points[i].hash >= keyHash })
	if pos == len(l.points) {
		pos = 0
	}

	want := replicaCount(req)
	seen := make(map[Node]bool, want)
	result := make([]Node, 0, want)
	for i := 0; i < len(l.points) && len(result) < want; i++ {
		n := l.points[(pos+i)%len(l.points)].node
		if seen[n] {
			continue
		}
		seen[n] = true
		result = append(result, n)
	}
	return result
}

// ---------------------------------------------------------------------------
// VBucketServerMapLocator

// VBucketServerMap routes a key to a fixed bucket (couchbase_hash(key) mod
// len(table)), then to whichever nodes that bucket's table row names, in
// order; a -1 entry means "no node owns this replica slot" and is skipped.
// The computed bucket id is written back into the request's wire header via
// SetVBucket, since the server expects it there. No liveness filtering: a
// vbucket map is the authoritative topology, not a health signal.
type VBucketServerMap struct {
	nodes []Node
	table [][]int32
}

// NewVBucketServerMap builds a locator from nodes (indexed as table entries
// reference them) and table, a bucket -> [node index, ...] map as served by
// the cluster's configuration endpoint.
func NewVBucketServerMap(nodes []Node, table [][]int32) *VBucketServerMap {
	return &VBucketServerMap{
		nodes: append([]Node(nil), nodes...),
		table: table,
	}
}

func (m *VBucketServerMap) Locate(req Request) []Node {
	if len(m.table) == 0 {
		return nil
	}

	bucket := VBucket(requestKey(req), len(m.table))
	req.SetVBucket(uint16(bucket))

	row := m.table[bucket]
	want := replicaCount(req)
	result := make([]Node, 0, want)
	for _, idx := range row {
		if len(result) >= want {
			break
		}
		if idx < 0 || int(idx) >= len(m.nodes) {
			continue
		}
		result = append(result, m.nodes[idx])
	}
	return result
}
