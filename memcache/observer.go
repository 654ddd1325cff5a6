package memcache

// Observer receives the four event hooks spec.md §4.4 calls out:
// on_transport_error, on_memcache_error, on_memcache_response and
// on_transport_dead. Modeled as one interface with a method per hook; an
// implementation must provide all four methods. Several observers can be
// attached at once through MultiObserver, which fans each event out to
// every member.
type Observer interface {
	// OnTransportError fires for both transient and fatal transport errors
	// (connect failures, partial writes that can't be recovered, protocol
	// desync). endpoint identifies which Transport/Node raised it.
	OnTransportError(endpoint string, err error)

	// OnMemcacheError fires once per reply whose status is not NoError,
	// alongside (and before) that reply being delivered to the Request via
	// HandleResponse.
	OnMemcacheError(endpoint string, header ResponseHeader, req Request)

	// OnMemcacheResponse fires for every reply, regardless of status,
	// before OnMemcacheError (if any) and HandleResponse are invoked.
	OnMemcacheResponse(endpoint string, header ResponseHeader, req Request)

	// OnTransportDead fires when a Transport has torn itself down after a
	// fatal send failure. A replacement is spawned first unless the
	// transport or its Node is shutting down.
	OnTransportDead(endpoint string)
}

// MultiObserver fans an event out to every Observer in the slice, in order.
// This is the "allow multiple observers per slot" mechanism Design Notes §9
// asks for: construct one Config.Observer as a MultiObserver of however many
// real observers (logging, metrics, test spies) a caller wants.
type MultiObserver []Observer

func (m MultiObserver) OnTransportError(endpoint string, err error) {
	for _, o := range m {
		o.OnTransportError(endpoint, err)
	}
}

func (m MultiObserver) OnMemcacheError(endpoint string, header ResponseHeader, req Request) {
	for _, o := range m {
		o.OnMemcacheError(endpoint, header, req)
	}
}

func (m MultiObserver) OnMemcacheResponse(endpoint string, header ResponseHeader, req Request) {
	for _, o := range m {
		o.OnMemcacheResponse(endpoint, header, req)
	}
}

func (m MultiObserver) OnTransportDead(endpoint string) {
	for _, o := range m {
		o.OnTransportDead(endpoint)
	}
}

// noopObserver is substituted by Config.withDefaults when the caller leaves
// Observer nil, so Transport/Node never have to nil-check before firing a
// hook.
type noopObserver struct{}

func (noopObserver) OnTransportError(string, error)                      {}
func (noopObserver) OnMemcacheError(string, ResponseHeader, Request)      {}
func (noopObserver) OnMemcacheResponse(string, ResponseHeader, Request)   {}
func (noopObserver) OnTransportDead(string)                               {}
