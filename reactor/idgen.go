// File: reactor/idgen.go
// Connection identifier generation and decomposition. Each ConnectionID
// packs [24b date YYMMDD][8b reactor id][16b fd][16b sequence]; the
// sequence is a per-(reactor,fd) monotonic counter combined with a live-id
// collision check on assignment to keep fd reuse within a day from
// aliasing two distinct connections.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"sync"
	"time"

	"github.com/momentics/netreactor/api"
)

// idGenerator produces ConnectionIDs for one Reactor. It is only ever driven
// by that Reactor's own loop thread, but the mutex keeps it safe if callers
// change.
type idGenerator struct {
	reactorID uint8

	mu      sync.Mutex
	seqByFd map[uint16]uint16
}

func newIDGenerator(reactorID uint8) *idGenerator {
	return &idGenerator{reactorID: reactorID, seqByFd: make(map[uint16]uint16)}
}

// nextSequence advances and returns the next sequence value for fd. Wrapping
// at 2^16 is intentional: sequence disambiguates fd reuse within a single
// day, and a fd would have to be reused 65536 times within one calendar day
// to alias, at which point exists() below still catches a live collision.
func (g *idGenerator) nextSequence(fd uint16) uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()
	seq := g.seqByFd[fd] + 1
	g.seqByFd[fd] = seq
	return seq
}

// generate builds a ConnectionID for fd, retrying with the next sequence
// value if exists (typically the Reactor's live connection map) reports a
// collision. exists may be nil.
func (g *idGenerator) generate(fd int, exists func(api.ConnectionID) bool) api.ConnectionID {
	fd16 := uint16(fd)
	date := currentDateYYMMDD()
	for {
		seq := g.nextSequence(fd16)
		id := ComposeConnectionID(date, g.reactorID, fd16, seq)
		if exists == nil || !exists(id) {
			return id
		}
	}
}

func currentDateYYMMDD() uint32 {
	now := time.Now()
	return uint32((now.Year()%100)*10000 + int(now.Month())*100 + now.Day())
}

// ComposeConnectionID packs the four fields into the wire-visible 64-bit id
// layout. Exported for tests and diagnostics.
func ComposeConnectionID(dateYYMMDD uint32, reactorID uint8, fd, seq uint16) api.ConnectionID {
	return api.ConnectionID(
		(uint64(dateYYMMDD&0xFFFFFF) << 40) |
			(uint64(reactorID) << 32) |
			(uint64(fd) << 16) |
			uint64(seq),
	)
}

// ParseConnectionID decomposes a ConnectionID back into its fields.
func ParseConnectionID(id api.ConnectionID) (dateYYMMDD uint32, reactorID uint8, fd, seq uint16) {
	v := uint64(id)
	dateYYMMDD = uint32((v >> 40) & 0xFFFFFF)
	reactorID = uint8((v >> 32) & 0xFF)
	fd = uint16((v >> 16) & 0xFFFF)
	seq = uint16(v & 0xFFFF)
	return
}

// ConnectionIDDate returns just the date component of a ConnectionID.
func ConnectionIDDate(id api.ConnectionID) uint32 {
	d, _, _, _ := ParseConnectionID(id)
	return d
}

// ConnectionIDReactorID returns just the reactor-id component of a ConnectionID.
func ConnectionIDReactorID(id api.ConnectionID) uint8 {
	_, r, _, _ := ParseConnectionID(id)
	return r
}

// ConnectionIDFd returns just the file-descriptor component of a ConnectionID.
func ConnectionIDFd(id api.ConnectionID) uint16 {
	_, _, fd, _ := ParseConnectionID(id)
	return fd
}

// ConnectionIDSeq returns just the sequence component of a ConnectionID.
func ConnectionIDSeq(id api.ConnectionID) uint16 {
	_, _, _, seq := ParseConnectionID(id)
	return seq
}
