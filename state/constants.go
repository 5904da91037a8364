package state

import "time"

const (
	// NbrIDSelf is the peer id of the neighbor standing for this router when it
	// originates AS scoped LSAs. Peer ids handed out by the adjacency engine
	// start above it.
	NbrIDSelf = 1

	DefaultMetric = 10
)

var (
	SpfDelay = time.Second
	SpfHold  = time.Second * 5

	// protocol timers, variables so tests can shrink them
	MinLSArrival  = time.Second
	MinLSInterval = time.Second * 5
	LSRefreshTime = time.Second * 1800

	// how often expired reply suppression entries are dropped
	ReplyPurgeInterval = time.Second * 30

	DispatchQueueSize = 256
	SlowDispatch      = time.Millisecond * 4

	// default socket locations
	EngineSocket  = "/var/run/ospf6d.engine.sock"
	ParentSocket  = "/var/run/ospf6d.parent.sock"
	ControlSocket = "/var/run/ospf6rde.sock"
)
