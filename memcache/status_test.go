package memcache

import (
	. "gopkg.in/check.v1"

	. "github.com/awesomedotnetcore/memcache-driver/gocheck2"
)

type StatusSuite struct{}

var _ = Suite(&StatusSuite{})

func (s *StatusSuite) TestNoErrorOutranksEverything(c *C) {
	for _, other := range statusRank[1:] {
		c.Check(higherPriority(StatusNoError, other), IsTrue)
	}
}

// "a server that answered 'missing' is deemed more authoritative than one
// that never answered" -- spec.md §4.3.
func (s *StatusSuite) TestKeyNotFoundOutranksInternalError(c *C) {
	c.Assert(higherPriority(StatusKeyNotFound, StatusInternalError), IsTrue)
	c.Assert(higherPriority(StatusInternalError, StatusKeyNotFound), IsFalse)
}

func (s *StatusSuite) TestEqualStatusIsNotHigherPriority(c *C) {
	c.Assert(higherPriority(StatusBusy, StatusBusy), IsFalse)
}

func (s *StatusSuite) TestStatusCodeErrorNilOnlyForNoError(c *C) {
	c.Assert(statusCodeError(StatusNoError), IsNil)
	for _, status := range statusRank[1:] {
		c.Check(statusCodeError(status), NotNil)
	}
}
