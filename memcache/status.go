package memcache

import "github.com/awesomedotnetcore/memcache-driver/errors"

// statusCodeError returns a human readable error for a non-NoError status,
// or nil for StatusNoError. Mirrors the teacher's NewStatusCodeError.
func statusCodeError(status ResponseStatus) error {
	switch status {
	case StatusNoError:
		return nil
	case StatusKeyNotFound:
		return errors.New("key not found")
	case StatusKeyExists:
		return errors.New("key exists")
	case StatusValueTooLarge:
		return errors.New("value too large")
	case StatusInvalidArguments:
		return errors.New("invalid arguments")
	case StatusItemNotStored:
		return errors.New("item not stored")
	case StatusNonNumericValue:
		return errors.New("incr/decr on non-numeric value")
	case StatusVBucketBelongsToAnotherServer:
		return errors.New("vbucket belongs to another server")
	case StatusAuthRequired:
		return errors.New("authentication required")
	case StatusAuthContinue:
		return errors.New("authentication continue")
	case StatusUnknownCommand:
		return errors.New("unknown command")
	case StatusOutOfMemory:
		return errors.New("server out of memory")
	case StatusNotSupported:
		return errors.New("not supported")
	case StatusInternalError:
		return errors.New("internal error")
	case StatusBusy:
		return errors.New("server busy")
	case StatusTempFailure:
		return errors.New("temporary server failure")
	default:
		return errors.Newf("invalid status: %d", int(status))
	}
}

// statusRank orders statuses from most to least authoritative for the
// AnyOK aggregation policy (see AggregatingRequest.handleEvent). Two points are pinned by
// spec: NoError outranks everything, and KeyNotFound outranks
// InternalError ("a server that answered 'missing' is deemed more
// authoritative than one that never answered"). The remaining entries
// follow the same reasoning: a real, specific answer from a server beats
// a generic server complaint, which beats a client-synthesized failure,
// which beats "the server doesn't trust us yet".
var statusRank = []ResponseStatus{
	StatusNoError,
	StatusKeyNotFound,
	StatusKeyExists,
	StatusItemNotStored,
	StatusValueTooLarge,
	StatusInvalidArguments,
	StatusNonNumericValue,
	StatusVBucketBelongsToAnotherServer,
	StatusUnknownCommand,
	StatusOutOfMemory,
	StatusNotSupported,
	StatusBusy,
	StatusTempFailure,
	StatusInternalError,
	StatusAuthRequired,
	StatusAuthContinue,
}

var statusPriority = func() map[ResponseStatus]int {
	m := make(map[ResponseStatus]int, len(statusRank))
	for i, s := range statusRank {
		m[s] = i
	}
	return m
}()

// higherPriority reports whether status a should win over status b when
// picking the single most authoritative status out of several replies
// that were all non-NoError. Unranked statuses (shouldn't happen on the
// wire, but defensive) are treated as least authoritative.
func higherPriority(a, b ResponseStatus) bool {
	pa, ok := statusPriority[a]
	if !ok {
		pa = len(statusRank)
	}
	pb, ok := statusPriority[b]
	if !ok {
		pb = len(statusRank)
	}
	return pa < pb
}
