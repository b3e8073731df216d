// File: reactor/idgen_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/netreactor/api"
)

func TestComposeAndParseConnectionIDRoundTrip(t *testing.T) {
	id := ComposeConnectionID(260806, 3, 42, 7)
	date, reactorID, fd, seq := ParseConnectionID(id)
	assert.Equal(t, uint32(260806), date)
	assert.Equal(t, uint8(3), reactorID)
	assert.Equal(t, uint16(42), fd)
	assert.Equal(t, uint16(7), seq)
}

func TestConnectionIDComponentAccessors(t *testing.T) {
	id := ComposeConnectionID(260806, 3, 42, 7)
	assert.Equal(t, uint32(260806), ConnectionIDDate(id))
	assert.Equal(t, uint8(3), ConnectionIDReactorID(id))
	assert.Equal(t, uint16(42), ConnectionIDFd(id))
	assert.Equal(t, uint16(7), ConnectionIDSeq(id))
}

func TestIDGeneratorSequenceAdvancesPerFd(t *testing.T) {
	g := newIDGenerator(1)
	id1 := g.generate(5, nil)
	id2 := g.generate(5, nil)
	_, _, _, seq1 := ParseConnectionID(id1)
	_, _, _, seq2 := ParseConnectionID(id2)
	assert.NotEqual(t, seq1, seq2)
}

func TestIDGeneratorRetriesOnCollision(t *testing.T) {
	g := newIDGenerator(1)
	first := g.generate(9, nil)

	seen := map[api.ConnectionID]bool{first: true}
	calls := 0
	id := g.generate(9, func(candidate api.ConnectionID) bool {
		calls++
		if calls == 1 {
			return true // force one retry
		}
		return seen[candidate]
	})
	require.NotEqual(t, first, id)
	assert.GreaterOrEqual(t, calls, 2)
}
