// Package memcache implements the transport, node pool and key locator
// core of a client for memcached's binary protocol, as used by Couchbase
// and plain memcached clusters.
//
// This package is deliberately narrow: it owns the TCP framing, the
// pipelined send/receive state machine, per-endpoint connection pooling
// and backpressure, and the three key-to-node locator strategies
// (round-robin, Ketama consistent hashing, and vbucket server maps). It
// does not know about typed operations (Get/Set/Delete/...), request
// construction, or serialization choices -- those belong to a higher
// level façade built on top of the Request interface exposed here.
//
// See https://github.com/couchbase/memcached/blob/master/docs/BinaryProtocol.md
// for the wire protocol this package speaks.
package memcache
