package memcache

import "hash/crc32"

// CouchbaseHash computes the "Couchbase default" bucket hash for a raw key:
// CRC-32/IEEE of the key, right shifted 16 bits, masked to 15 bits. This is
// bit-for-bit what Couchbase servers use to pick a vbucket, so any
// divergence here breaks VBucketServerMap routing against a live cluster.
//
// hash/crc32's IEEE table is the exact polynomial (0xEDB88320 reversed) the
// protocol calls for; there's no ecosystem alternative that would produce a
// different, let alone better, result for a fixed well-known polynomial.
func CouchbaseHash(key []byte) uint32 {
	crc := crc32.ChecksumIEEE(key)
	return (crc >> 16) & 0x7fff
}

// VBucket returns the bucket index for key given a bucket count B (commonly
// a power of two, e.g. 1024). Keys are hashed as the raw bytes given -- no
// normalization, per spec.md §4.1.
func VBucket(key []byte, numBuckets int) int {
	return int(CouchbaseHash(key)) % numBuckets
}
