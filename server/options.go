// File: server/options.go
// Functional options for Server construction.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/momentics/netreactor/api"
)

// Option customizes Server construction.
type Option func(*Config)

// WithReactorCount sets how many independent Reactor shards accept and
// service connections.
func WithReactorCount(n int) Option {
	return func(c *Config) { c.ReactorCount = n }
}

// WithWorkerShards sets the worker pool's shard count.
func WithWorkerShards(n int) Option {
	return func(c *Config) { c.WorkerShards = n }
}

// WithWorkerQueueDepth bounds each worker shard's event queue.
func WithWorkerQueueDepth(n int) Option {
	return func(c *Config) { c.WorkerQueueDepth = n }
}

// WithRecvBufferSize overrides the per-read syscall buffer size.
func WithRecvBufferSize(n int) Option {
	return func(c *Config) { c.RecvBufferSize = n }
}

// WithBacklog overrides listen(2)'s backlog argument.
func WithBacklog(n int) Option {
	return func(c *Config) { c.Backlog = n }
}

// WithMessageTimeout overrides how long a partial message assembly is kept.
func WithMessageTimeout(d time.Duration) Option {
	return func(c *Config) { c.MessageTimeout = d }
}

// WithShutdownTimeout bounds how long Stop waits for SendBuffers to drain.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.ShutdownTimeout = d }
}

// WithCRC32 turns on CRC32 protection for outbound Message frames.
func WithCRC32(enabled bool) Option {
	return func(c *Config) { c.EnableCRC = enabled }
}

// WithLogger injects a structured log sink; the default is api.NopLogSink.
func WithLogger(logger api.LogSink) Option {
	return func(c *Config) { c.Logger = logger }
}
