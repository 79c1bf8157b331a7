package remotetest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpersRoundTrip(t *testing.T) {
	srv := NewServer(t)
	srv.Mkdir("/data/empty")
	srv.WriteFile("/data/a.txt", []byte("hello"))

	assert.True(t, srv.Exists("/data/empty"))
	assert.False(t, srv.Exists("/data/missing"))
	assert.Equal(t, []byte("hello"), srv.ReadFile("/data/a.txt"))
}

func TestChannelCloseReturns(t *testing.T) {
	srv := NewServer(t)
	ch := srv.Channel()
	_, err := ch.Stat("/")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- ch.Close() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	// A second Close is a no-op.
	done2 := make(chan struct{})
	go func() {
		ch.Close()
		close(done2)
	}()
	select {
	case <-done2:
	case <-time.After(5 * time.Second):
		t.Fatal("second Close did not return")
	}
}
