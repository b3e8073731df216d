// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/momentics/netreactor/api"
)

// Config holds every tunable a Server needs at construction time.
type Config struct {
	ReactorCount     int
	WorkerShards     int
	WorkerQueueDepth int
	RecvBufferSize   int
	Backlog          int
	MessageTimeout   time.Duration
	ShutdownTimeout  time.Duration
	EnableCRC        bool
	Logger           api.LogSink
}

// DefaultConfig returns the baseline Config.
func DefaultConfig() Config {
	return Config{
		ReactorCount:     api.DefaultWorkerCount,
		WorkerShards:     api.DefaultWorkerCount,
		WorkerQueueDepth: api.DefaultWorkerQueueDepth,
		RecvBufferSize:   api.DefaultReceiveBufferSize,
		Backlog:          api.DefaultBacklog,
		MessageTimeout:   time.Duration(api.DefaultMessageTimeoutMS) * time.Millisecond,
		ShutdownTimeout:  10 * time.Second,
		EnableCRC:        false,
		Logger:           api.NopLogSink{},
	}
}
