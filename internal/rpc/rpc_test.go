package rpc

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSystem struct {
	lock   sync.Mutex
	status Status
}

func (f *fakeSystem) getStatus() Status {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.status
}

func (f *fakeSystem) applyPolicy(change PolicyChange) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	switch change.Kind {
	case "random":
		f.status.Random = true
		return nil
	default:
		return errors.New("unknown policy " + change.Kind)
	}
}

func startTestRPCServer(t *testing.T, system *fakeSystem) string {
	t.Helper()

	socket := filepath.Join(t.TempDir(), "delorean.sock")
	server := &DeloreanRPCServer{
		Socket:      socket,
		GetStatus:   system.getStatus,
		ApplyPolicy: system.applyPolicy,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan error, 1)
	go func() { done <- server.Listen(&wg) }()

	t.Cleanup(func() {
		require.NoError(t, server.Close())
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("rpc server did not stop")
		}
		wg.Wait()
	})

	require.Eventually(t, func() bool {
		client, err := Dial(socket)
		if err != nil {
			return false
		}
		client.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	return socket
}

func TestFetchStatus(t *testing.T) {
	system := &fakeSystem{status: Status{
		Listen:     "0.0.0.0:123",
		BaseOffset: 7_776_000,
		Clients:    []SeenClient{{Addr: "192.0.2.7", LastSeen: time.Unix(1_800_000_000, 0).UTC()}},
		Sent:       12,
	}}
	socket := startTestRPCServer(t, system)

	client, err := Dial(socket)
	require.NoError(t, err)
	defer client.Close()

	var status Status
	require.NoError(t, client.Call(FetchStatusMethod, 0, &status))

	assert.Equal(t, "0.0.0.0:123", status.Listen)
	assert.Equal(t, 7_776_000.0, status.BaseOffset)
	assert.Equal(t, uint64(12), status.Sent)
	require.Len(t, status.Clients, 1)
	assert.Equal(t, "192.0.2.7", status.Clients[0].Addr)
	assert.True(t, status.Clients[0].LastSeen.Equal(time.Unix(1_800_000_000, 0)))
}

func TestSetPolicy(t *testing.T) {
	system := &fakeSystem{}
	socket := startTestRPCServer(t, system)

	client, err := Dial(socket)
	require.NoError(t, err)
	defer client.Close()

	var status Status
	require.NoError(t, client.Call(SetPolicyMethod, PolicyChange{Kind: "random"}, &status))
	assert.True(t, status.Random)

	err = client.Call(SetPolicyMethod, PolicyChange{Kind: "warp", Value: "88"}, &status)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown policy warp")
}

func TestListenReplacesStaleSocket(t *testing.T) {
	system := &fakeSystem{}
	socket := startTestRPCServer(t, system)

	// A second server on the same path takes it over.
	second := &DeloreanRPCServer{Socket: socket, GetStatus: system.getStatus, ApplyPolicy: system.applyPolicy}
	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan error, 1)
	go func() { done <- second.Listen(&wg) }()

	require.Eventually(t, func() bool {
		second.lock.Lock()
		defer second.lock.Unlock()
		return second.listener != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, second.Close())
	assert.NoError(t, <-done)
}

func TestCloseBeforeListen(t *testing.T) {
	system := &fakeSystem{}
	server := &DeloreanRPCServer{
		Socket:      filepath.Join(t.TempDir(), "delorean.sock"),
		GetStatus:   system.getStatus,
		ApplyPolicy: system.applyPolicy,
	}
	require.NoError(t, server.Close())

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan error, 1)
	go func() { done <- server.Listen(&wg) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen kept serving after Close")
	}
	wg.Wait()
}
