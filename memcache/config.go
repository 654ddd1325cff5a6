package memcache

import (
	"net"
	"time"
)

const (
	defaultPinnedBufferSize      = 16 * 1024
	defaultReceiveBufferSize     = 64 * 1024
	defaultConnectTimerPeriod    = 500 * time.Millisecond
	defaultSocketTimeout         = 2500 * time.Millisecond
	defaultPoolSize              = 1
	defaultShutdownGracePeriod   = 2 * time.Second
)

// Config enumerates every knob spec.md §6 lists, plus the two additions
// SPEC_FULL.md §4.5/§4.8 calls for (ShutdownGracePeriod, PoolSize). Mirrors
// the teacher's net2.ConnectionOptions defaulting dance: zero-value fields
// get a sane default applied by withDefaults(), so callers only set what
// they care about.
type Config struct {
	// PinnedBufferSize is the size of each Transport's pinned send and
	// receive I/O buffers.
	PinnedBufferSize int

	// TransportReceiveBufferSize is the SO_RCVBUF/SO_SNDBUF value applied to
	// each connection's socket.
	TransportReceiveBufferSize int32

	// TransportConnectTimerPeriod is the backoff between reconnect attempts
	// for a Transport in ConnectFailed state.
	TransportConnectTimerPeriod time.Duration

	// SocketTimeout bounds each authentication step; it is not used outside
	// authentication (spec.md §5: "there is no per-request timeout at this
	// layer").
	SocketTimeout time.Duration

	// QueueLength is the per-transport pending request cap that triggers
	// backpressure. 0 means unbounded.
	QueueLength uint32

	// PoolSize is how many transports each Node maintains.
	PoolSize int

	// ShutdownGracePeriod bounds how long Node.Shutdown waits for
	// outstanding QUIT replies before force-disposing remaining transports.
	ShutdownGracePeriod time.Duration

	// Authenticator, if set, makes every Transport run a SASL handshake
	// after connecting and before carrying general traffic.
	Authenticator Authenticator

	// TransportFactory, if set, overrides how a Node (or a Transport
	// spawning its own replacement after a fatal send failure) constructs a
	// Transport. Tests substitute this to inject fakes; production code
	// leaves it nil to get NewTransport. onRegister/onAvailable are the
	// pool-membership callbacks the Transport must invoke once connected
	// and authenticated; nodeClosing is the weak "is my owning Node
	// shutting down" predicate (see Design Notes §9).
	TransportFactory func(
		endpoint string,
		cfg *Config,
		observer Observer,
		onRegister func(Transport),
		onAvailable func(Transport),
		nodeClosing func() bool) Transport

	// NodeFactory is carried on Config for callers that build their own
	// Nodes; nothing in this package reads it (NewCluster takes ready-made
	// Nodes).
	NodeFactory func(endpoint string, cfg *Config, observer Observer) Node

	// Observer receives the four event hooks described in observer.go. Nil
	// is replaced with a no-op observer by withDefaults().
	Observer Observer

	// Dial overrides how a Transport opens its TCP connection. Nil uses
	// net.DialTimeout against endpoint with a fixed 1s timeout, mirroring
	// the teacher's net2.BaseConnectionPool default.
	Dial func(network, address string) (net.Conn, error)
}

// withDefaults returns a copy of cfg with every zero-value optional field
// replaced by its default, the way net2.newBaseConnectionPool substitutes a
// default Dial when the caller leaves one unset.
func (cfg Config) withDefaults() *Config {
	if cfg.PinnedBufferSize <= 0 {
		cfg.PinnedBufferSize = defaultPinnedBufferSize
	}
	if cfg.TransportReceiveBufferSize <= 0 {
		cfg.TransportReceiveBufferSize = defaultReceiveBufferSize
	}
	if cfg.TransportConnectTimerPeriod <= 0 {
		cfg.TransportConnectTimerPeriod = defaultConnectTimerPeriod
	}
	if cfg.SocketTimeout <= 0 {
		cfg.SocketTimeout = defaultSocketTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.ShutdownGracePeriod <= 0 {
		cfg.ShutdownGracePeriod = defaultShutdownGracePeriod
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	return &cfg
}
