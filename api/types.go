// File: api/types.go
// Package api defines the cross-component types shared by the reactor,
// worker pool, protocol codec and the Server/Client façades.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// ConnectionID uniquely identifies a live connection for the lifetime of that
// connection. It is encoded as [24b date YYMMDD][8b reactor id][16b fd][16b
// sequence]; business layers use it exclusively, fds are never exposed
// across component boundaries.
type ConnectionID uint64

// EventType enumerates the kinds of NetworkEvent the Reactor emits.
type EventType int

const (
	// EventConnected is emitted once a connection is registered with a Reactor.
	EventConnected EventType = iota
	// EventData carries an inbound payload for an already-connected id.
	EventData
	// EventDisconnected is emitted on orderly peer close or local removal.
	EventDisconnected
	// EventError is emitted on a fault; terminal, like EventDisconnected.
	EventError
	// EventCongestion is emitted whenever a connection's SendBuffer crosses
	// its high or low watermark, per the NetworkEvent.Congested field.
	// Non-terminal: unlike EventError/EventDisconnected, the connection
	// stays open and may flip back and forth any number of times.
	EventCongestion
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "Connected"
	case EventData:
		return "Data"
	case EventDisconnected:
		return "Disconnected"
	case EventError:
		return "Error"
	case EventCongestion:
		return "Congestion"
	default:
		return "Unknown"
	}
}

// ConnectionInfo is a read-only, fd-free projection of a connection. Safe to
// copy, log, persist and pass between threads.
type ConnectionInfo struct {
	ConnectionID ConnectionID
	PeerAddress  string
	PeerPort     uint16
	IsUnixDomain bool
}

// NetworkEvent is the single message type that crosses the Reactor->Worker
// boundary. It never carries an fd; Data/Connected/Error/Congested fields
// are only valid for the matching Type.
type NetworkEvent struct {
	Type         EventType
	ConnectionID ConnectionID
	Payload      []byte
	Info         *ConnectionInfo
	Err          NetworkError
	ErrDetail    string
	Congested    bool // valid for EventCongestion: true entering, false leaving
}

// SocketProtocol selects the address family / transport a listener or dialer
// binds to.
type SocketProtocol int

const (
	ProtoIPv4 SocketProtocol = iota
	ProtoIPv6
	ProtoUniversalIP
	ProtoUnixDomain
)

// Default socket-level tunables, mirrored from the original implementation's
// SocketConfiguration defaults.
const (
	DefaultWorkerCount        = 4
	DefaultEventBatchSize     = 64
	DefaultReceiveBufferSize  = 8 * 1024
	DefaultBacklog            = 128
	DefaultWorkerQueueDepth   = 10_000
	DefaultMessageTimeoutMS   = 30_000
	DefaultWaitEventsPollMS   = 100
	SendBufferInitialCapacity = 4 * 1024
	SendBufferHighWatermark   = 8 * 1024 * 1024
	SendBufferLowWatermark    = 4 * 1024 * 1024
	SendBufferMaxCapacity     = 32 * 1024 * 1024
)

// SocketConfig bundles everything needed to bind a listener or dial a peer.
// Ported from the original implementation's SocketConfiguration, which
// bundled protocol/host/port/backlog behind named constructors instead of
// four separate positional-argument Start*/Connect* signatures.
type SocketConfig struct {
	Protocol SocketProtocol
	Host     string // address (IPv4/IPv6) or path (Unix domain)
	Port     uint16
	Backlog  int
}

// SocketIPv4 builds an IPv4 SocketConfig with the given backlog.
func SocketIPv4(host string, port uint16, backlog int) SocketConfig {
	return SocketConfig{Protocol: ProtoIPv4, Host: host, Port: port, Backlog: backlog}
}

// SocketIPv6 builds an IPv6 SocketConfig with the given backlog.
func SocketIPv6(host string, port uint16, backlog int) SocketConfig {
	return SocketConfig{Protocol: ProtoIPv6, Host: host, Port: port, Backlog: backlog}
}

// SocketUniversalIP builds a dual-stack SocketConfig (two listeners, one
// per address family).
func SocketUniversalIP(host string, port uint16, backlog int) SocketConfig {
	return SocketConfig{Protocol: ProtoUniversalIP, Host: host, Port: port, Backlog: backlog}
}

// SocketUnixDomain builds a Unix-domain SocketConfig for the given path.
func SocketUnixDomain(path string, backlog int) SocketConfig {
	return SocketConfig{Protocol: ProtoUnixDomain, Host: path, Backlog: backlog}
}
