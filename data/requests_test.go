package data

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ndidplatform/idp-agent/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authReq(requestID string) proto.AuthRequest {
	return proto.AuthRequest{
		RequestID: requestID,
		Payload:   proto.RequestPayload{RequestID: requestID, MinIAL: 3},
	}
}

func TestRequestStore_SaveRemoveGet(t *testing.T) {
	s := NewRequestStore()

	require.NoError(t, s.Save("U1", authReq("R1")))

	got, found := s.Get("U1", "R1")
	require.True(t, found)
	assert.Equal(t, "R1", got.RequestID)
	assert.Equal(t, "U1", got.UserID)

	s.Remove("R1")
	_, found = s.Get("U1", "R1")
	assert.False(t, found)
}

func TestRequestStore_RemoveIsIdempotent(t *testing.T) {
	s := NewRequestStore()
	require.NoError(t, s.Save("U1", authReq("R1")))

	s.Remove("R1")
	s.Remove("R1")
	s.Remove("never-existed")

	_, found := s.Get("U1", "R1")
	assert.False(t, found)
	assert.Empty(t, s.ListByUser("U1"))
}

func TestRequestStore_OwnershipConflict(t *testing.T) {
	s := NewRequestStore()
	require.NoError(t, s.Save("U1", authReq("R1")))

	err := s.Save("U2", authReq("R1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, proto.ErrRequestOwnershipConflict))

	// The original owner is untouched.
	got, found := s.Get("U1", "R1")
	require.True(t, found)
	assert.Equal(t, "U1", got.UserID)
	_, found = s.Get("U2", "R1")
	assert.False(t, found)
}

func TestRequestStore_OverwriteSameUser(t *testing.T) {
	s := NewRequestStore()

	req := authReq("R1")
	req.Payload.RequestMessage = "first"
	require.NoError(t, s.Save("U1", req))

	req.Payload.RequestMessage = "second"
	require.NoError(t, s.Save("U1", req))

	got, found := s.Get("U1", "R1")
	require.True(t, found)
	assert.Equal(t, "second", got.Payload.RequestMessage)
	assert.Len(t, s.ListByUser("U1"), 1)
}

func TestRequestStore_ListByUserOrder(t *testing.T) {
	s := NewRequestStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save("U1", authReq(fmt.Sprintf("R%d", i))))
	}
	require.NoError(t, s.Save("U2", authReq("other")))

	reqs := s.ListByUser("U1")
	require.Len(t, reqs, 5)
	for i, req := range reqs {
		assert.Equal(t, fmt.Sprintf("R%d", i), req.RequestID)
	}

	s.Remove("R2")
	reqs = s.ListByUser("U1")
	require.Len(t, reqs, 4)
	assert.Equal(t, []string{"R0", "R1", "R3", "R4"}, []string{
		reqs[0].RequestID, reqs[1].RequestID, reqs[2].RequestID, reqs[3].RequestID,
	})
}

func TestRequestStore_ClaimHidesRequest(t *testing.T) {
	s := NewRequestStore()
	require.NoError(t, s.Save("U1", authReq("R1")))

	req, claimed := s.Claim("U1", "R1")
	require.True(t, claimed)
	assert.Equal(t, "R1", req.RequestID)

	// Claimed requests look resolved to everyone else.
	_, found := s.Get("U1", "R1")
	assert.False(t, found)
	assert.Empty(t, s.ListByUser("U1"))
	_, claimed = s.Claim("U1", "R1")
	assert.False(t, claimed)
}

func TestRequestStore_ClaimWrongUser(t *testing.T) {
	s := NewRequestStore()
	require.NoError(t, s.Save("U1", authReq("R1")))

	_, claimed := s.Claim("U2", "R1")
	assert.False(t, claimed)

	_, found := s.Get("U1", "R1")
	assert.True(t, found)
}

func TestRequestStore_SaveResetsClaim(t *testing.T) {
	s := NewRequestStore()
	require.NoError(t, s.Save("U1", authReq("R1")))

	_, claimed := s.Claim("U1", "R1")
	require.True(t, claimed)

	// A later arrival under the same id supersedes the claimed entry.
	require.NoError(t, s.Save("U1", authReq("R1")))
	_, found := s.Get("U1", "R1")
	assert.True(t, found)
}

func TestRequestStore_ConcurrentClaims(t *testing.T) {
	s := NewRequestStore()
	require.NoError(t, s.Save("U1", authReq("R1")))

	const claimers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, claimers)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Claim("U1", "R1"); ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}
