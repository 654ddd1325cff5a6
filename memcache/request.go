package memcache

import "sync"

// ReplicaPolicy controls how AggregatingRequest resolves the final status
// once all replicas+1 attempts have reported in.
type ReplicaPolicy int

const (
	// AnyOK fires as soon as the first NoError reply arrives. If every
	// attempt fails, the most authoritative failure status wins (see
	// statusRank in status.go).
	AnyOK ReplicaPolicy = iota
	// AllOK fires NoError only if every attempt returned NoError; the first
	// non-NoError status encountered wins otherwise.
	AllOK
)

// Request is the polymorphic object the transport/node/locator core
// operates on. It is deliberately narrow -- everything about how a request
// was built, what it means, and how its result is surfaced to an
// application is the façade's job, not this package's. See spec.md §3.
type Request interface {
	// QueryBuffer returns a fully formed binary protocol request, including
	// the opaque identifier RequestID returns.
	QueryBuffer() []byte

	// RequestID is the opaque value embedded in QueryBuffer(); responses are
	// matched back to pending requests by this value.
	RequestID() uint32

	// Replicas is the number of *additional* nodes (beyond the primary) this
	// request was dispatched to. remaining = Replicas()+1 total attempts.
	Replicas() uint8

	// Policy selects how multiple replies are aggregated into one result.
	Policy() ReplicaPolicy

	// VBucket/SetVBucket let a VBucketServerMap locator round-trip the
	// bucket id it computed into the request's wire header.
	VBucket() uint16
	SetVBucket(uint16)

	// HandleResponse delivers one reply. It may be called up to
	// Replicas()+1 times total (across Fail() calls too).
	HandleResponse(header ResponseHeader, key, extras, value []byte)

	// Fail delivers a synthetic StatusInternalError reply with no body. Used
	// when a transport/node could not even attempt to send the request.
	Fail()
}

// ReplyCallback is invoked exactly once per AggregatingRequest, carrying the
// status the aggregation policy settled on and the body of whichever reply
// produced that status (nil bodies for a pure Fail()).
type ReplyCallback func(status ResponseStatus, key, extras, value []byte)

// AggregatingRequest is a ready-to-use Request implementation that performs
// the aggregation described in spec.md §4.3. A façade builds one of these
// per logical operation, gives it a pre-built query buffer and a
// ReplyCallback, and hands it to Cluster.Dispatch.
type AggregatingRequest struct {
	buffer   []byte
	id       uint32
	replicas uint8
	policy   ReplicaPolicy
	callback ReplyCallback
	isStat   bool

	mu        sync.Mutex
	vbucket   uint16
	remaining int
	fired     bool

	// bestStatus/body hold the reply currently winning under the active
	// policy; which rule decides "winning" depends on policy (see
	// handleEvent).
	bestStatus ResponseStatus
	bestKey    []byte
	bestExtras []byte
	bestValue  []byte
	haveBest   bool

	// statRows accumulates Stat's multi-row stream (peeked, not dequeued,
	// by the transport until the empty-body terminator row arrives). See
	// SPEC_FULL.md "Supplemented features" #1.
	statRows map[string]string
}

// NewAggregatingRequest builds a Request ready for dispatch. buffer must
// already have requestID embedded as its opaque field (e.g. via
// EncodeRequest) -- this type does not mutate the buffer itself except for
// vbucket round-tripping, see SetVBucket.
func NewAggregatingRequest(
	buffer []byte,
	requestID uint32,
	replicas uint8,
	policy ReplicaPolicy,
	callback ReplyCallback) *AggregatingRequest {

	return &AggregatingRequest{
		buffer:    buffer,
		id:        requestID,
		replicas:  replicas,
		policy:    policy,
		callback:  callback,
		remaining: int(replicas) + 1,
	}
}

// NewStatRequest builds a Request for an OpStat invocation. Stat is
// single-shot (no replication) but replies with an arbitrary number of rows
// before a terminator row with an empty key and value; rows are accumulated
// into StatEntries() and do not count against the completion threshold --
// only the terminator (or a Fail()) completes the request. See
// SPEC_FULL.md "Supplemented features" #1.
func NewStatRequest(
	buffer []byte, requestID uint32, callback ReplyCallback) *AggregatingRequest {

	return &AggregatingRequest{
		buffer:    buffer,
		id:        requestID,
		replicas:  0,
		policy:    AnyOK,
		callback:  callback,
		remaining: 1,
		isStat:    true,
	}
}

func (r *AggregatingRequest) QueryBuffer() []byte  { return r.buffer }
func (r *AggregatingRequest) RequestID() uint32    { return r.id }
func (r *AggregatingRequest) Replicas() uint8      { return r.replicas }
func (r *AggregatingRequest) Policy() ReplicaPolicy { return r.policy }

func (r *AggregatingRequest) VBucket() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vbucket
}

func (r *AggregatingRequest) SetVBucket(v uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vbucket = v
	// encodeRequestHeader's vbucket/status field lives at header offset 6:8.
	if len(r.buffer) >= 8 {
		r.buffer[6] = byte(v >> 8)
		r.buffer[7] = byte(v)
	}
}

// HandleResponse implements Request.
func (r *AggregatingRequest) HandleResponse(
	header ResponseHeader, key, extras, value []byte) {

	r.handleEvent(header.Status, key, extras, value)
}

// Fail implements Request. Equivalent to a reply with StatusInternalError
// and null bodies.
func (r *AggregatingRequest) Fail() {
	r.handleEvent(StatusInternalError, nil, nil, nil)
}

func (r *AggregatingRequest) handleEvent(
	status ResponseStatus, key, extras, value []byte) {

	r.mu.Lock()
	defer r.mu.Unlock()

	// Stat rows (non-empty key or value, NoError) accumulate independent of
	// the remaining/fired bookkeeping; only the terminator row (empty key
	// and value) or a Fail() completes the request.
	if r.isStat && status == StatusNoError && (len(key) != 0 || len(value) != 0) {
		if r.statRows == nil {
			r.statRows = make(map[string]string)
		}
		r.statRows[string(key)] = string(value)
		return
	}

	if r.remaining > 0 {
		r.remaining--
	}

	if r.fired {
		return
	}

	switch r.policy {
	case AnyOK:
		if status == StatusNoError {
			r.fire(status, key, extras, value)
			return
		}
		if !r.haveBest || higherPriority(status, r.bestStatus) {
			r.bestStatus, r.bestKey, r.bestExtras, r.bestValue = status, key, extras, value
			r.haveBest = true
		}
		if r.remaining == 0 {
			r.fire(r.bestStatus, r.bestKey, r.bestExtras, r.bestValue)
		}
	case AllOK:
		if !r.haveBest && status != StatusNoError {
			r.bestStatus, r.bestKey, r.bestExtras, r.bestValue = status, key, extras, value
			r.haveBest = true
		}
		if r.remaining == 0 {
			if r.haveBest {
				r.fire(r.bestStatus, r.bestKey, r.bestExtras, r.bestValue)
			} else {
				r.fire(StatusNoError, key, extras, value)
			}
		}
	}
}

// fire must be called with mu held; it marks the request complete and
// invokes the callback exactly once.
func (r *AggregatingRequest) fire(
	status ResponseStatus, key, extras, value []byte) {

	if r.fired {
		return
	}
	r.fired = true
	if r.callback != nil {
		r.callback(status, key, extras, value)
	}
}

// StatEntries returns the stat rows accumulated so far; the map is complete
// once the terminator has arrived. Only meaningful for requests built around
// OpStat.
func (r *AggregatingRequest) StatEntries() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statRows
}
