package session

import (
	"sync"
	"testing"

	"github.com/coder/acp-go-sdk"
	"github.com/m4xw311/acpbridge/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRejectsDuplicate(t *testing.T) {
	s := NewStore()
	sess, err := s.Create("a", "/w")
	require.NoError(t, err)
	assert.Equal(t, "/w", sess.Cwd)
	assert.NotNil(t, sess.Tools)

	_, err = s.Create("a", "/other")
	assert.True(t, errors.Is(err, errors.ErrSessionExists))

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Same(t, sess, got)
}

func TestBindIsSetOnce(t *testing.T) {
	s := NewStore()
	_, err := s.Create("a", "/w")
	require.NoError(t, err)

	assert.True(t, s.Bind("a", "up-1"))
	assert.False(t, s.Bind("a", "up-2"))
	assert.False(t, s.Bind("a", "up-1"))
	assert.False(t, s.Bind("missing", "up-3"))

	sess, _ := s.Get("a")
	assert.Equal(t, "up-1", sess.UpstreamSessionID)
	owner, ok := s.Owner("up-1")
	require.True(t, ok)
	assert.Equal(t, "a", owner)
	_, ok = s.Owner("up-2")
	assert.False(t, ok)
}

func TestUnbindAndRebind(t *testing.T) {
	s := NewStore()
	_, err := s.Create("a", "/w")
	require.NoError(t, err)
	s.Bind("a", "up-1")

	s.Unbind("a")
	_, ok := s.Owner("up-1")
	assert.False(t, ok)

	// a resumed query announces the same id again
	s.Bind("a", "up-1")
	_, ok = s.Owner("up-1")
	assert.True(t, ok)
}

func TestDeleteRemovesMapping(t *testing.T) {
	s := NewStore()
	_, err := s.Create("a", "/w")
	require.NoError(t, err)
	_, err = s.Create("b", "/w")
	require.NoError(t, err)
	s.Bind("a", "up-1")

	s.Delete("a")
	_, ok := s.Get("a")
	assert.False(t, ok)
	_, ok = s.Owner("up-1")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, s.IDs())
}

func TestResolutionFulfilledOnce(t *testing.T) {
	r := NewResolution()
	var wg sync.WaitGroup
	wins := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- r.Resolve(Outcome{StopReason: acp.StopReasonCancelled})
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for w := range wins {
		if w {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, acp.StopReasonCancelled, (<-r.Done()).StopReason)
}

func TestSessionResolveClears(t *testing.T) {
	s := newSession("a", "/")
	assert.False(t, s.Resolve(Outcome{StopReason: acp.StopReasonEndTurn}))

	s.Resolution = NewResolution()
	s.Deferred = acp.StopReasonEndTurn
	r := s.Resolution
	assert.True(t, s.Resolve(Outcome{StopReason: acp.StopReasonEndTurn}))
	assert.Nil(t, s.Resolution)
	assert.Empty(t, s.Deferred)
	assert.Equal(t, acp.StopReasonEndTurn, (<-r.Done()).StopReason)
}
