package delorean

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AndrewLester/delorean/internal/rpc"
	"github.com/beevik/ntp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestSystem(t *testing.T, config string) (*DeloreanSystem, string) {
	t.Helper()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "delorean.conf")
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))
	socket := filepath.Join(dir, "delorean.sock")

	system := NewSystem("127.0.0.1", "0", configPath, socket, WithRand(rand.New(rand.NewSource(3))))
	require.NoError(t, system.Apply(PolicyChange{Kind: PolicyStep, Value: "90d"}))

	done := make(chan error, 1)
	go func() { done <- system.Start() }()

	t.Cleanup(func() {
		system.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("system did not stop")
		}
	})

	require.Eventually(t, func() bool {
		if system.Addr() == nil {
			return false
		}
		client, err := rpc.Dial(socket)
		if err != nil {
			return false
		}
		client.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	return system, socket
}

func TestSystemServesConfiguredPolicy(t *testing.T) {
	system, _ := startTestSystem(t, "workers 2\nstep 1y\n")

	// The flag override runs after the file's step.
	assert.Equal(t, 7_776_000.0, system.Engine().Policy().ForcedStep)

	response, err := ntp.QueryWithOptions(system.Addr().String(), ntp.QueryOptions{Timeout: 2 * time.Second})
	require.NoError(t, err)
	assert.InDelta(t, ninetyDays.Seconds(), response.ClockOffset.Seconds(), 2)

	status := system.Status()
	assert.Equal(t, 2, status.Workers)
	assert.Equal(t, system.Addr().String(), status.Listen)
	require.Len(t, status.Clients, 1)
	assert.Equal(t, "127.0.0.1", status.Clients[0].Addr)
}

func TestSystemControlSocket(t *testing.T) {
	system, socket := startTestSystem(t, "")

	client, err := rpc.Dial(socket)
	require.NoError(t, err)
	defer client.Close()

	var status rpc.Status
	require.NoError(t, client.Call(rpc.FetchStatusMethod, 0, &status))
	assert.InDelta(t, ninetyDays.Seconds(), status.BaseOffset, 1)
	assert.False(t, status.Random)

	require.NoError(t, client.Call(rpc.SetPolicyMethod, rpc.PolicyChange{Kind: PolicyRandom}, &status))
	assert.True(t, status.Random)
	assert.True(t, system.Engine().Policy().Random)

	err = client.Call(rpc.SetPolicyMethod, rpc.PolicyChange{Kind: PolicyStep, Value: "soon"}, &status)
	assert.Error(t, err)
}

func TestSystemApplyRejectsBadOverride(t *testing.T) {
	system := NewSystem("127.0.0.1", "0", "", "")

	assert.ErrorIs(t, system.Apply(PolicyChange{Kind: PolicyStep, Value: "soon"}), ErrInvalidDuration)
	assert.ErrorIs(t, system.Apply(PolicyChange{Kind: PolicyDate, Value: "tomorrow"}), ErrInvalidDate)
	assert.ErrorIs(t, system.Apply(PolicyChange{Kind: "warp"}), errUnknownPolicy)
	assert.NoError(t, system.Apply(PolicyChange{Kind: PolicyRandom}))
	assert.Error(t, system.SetWorkers(0))
}

func TestSystemStartFailsOnBadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "delorean.conf")
	require.NoError(t, os.WriteFile(configPath, []byte("warp 88mph\n"), 0o644))

	system := NewSystem("127.0.0.1", "0", configPath, "")
	err := system.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestListenAddress(t *testing.T) {
	config := deloreanConfig{listen: "192.0.2.1:1123"}

	assert.Equal(t, "192.0.2.1:1123", NewSystem("", "", "", "").listenAddress(config))
	assert.Equal(t, "0.0.0.0:123", NewSystem("", "", "", "").listenAddress(deloreanConfig{}))
	assert.Equal(t, "127.0.0.1:123", NewSystem("127.0.0.1", "", "", "").listenAddress(config))
	assert.Equal(t, "0.0.0.0:5123", NewSystem("", "5123", "", "").listenAddress(config))
}

func TestResolveSocket(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "delorean.conf")
	require.NoError(t, os.WriteFile(configPath, []byte("socket /tmp/other.sock\n"), 0o644))

	socket, err := NewSystem("", "", configPath, "").ResolveSocket()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.sock", socket)

	socket, err = NewSystem("", "", configPath, "/tmp/flag.sock").ResolveSocket()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/flag.sock", socket)

	socket, err = NewSystem("", "", "", "").ResolveSocket()
	require.NoError(t, err)
	assert.Equal(t, DefaultSocket, socket)
}

func TestSystemStopDuringStartup(t *testing.T) {
	for i := 0; i < 20; i++ {
		socket := filepath.Join(t.TempDir(), "delorean.sock")
		system := NewSystem("127.0.0.1", "0", "", socket)

		done := make(chan error, 1)
		go func() { done <- system.Start() }()

		require.Eventually(t, func() bool { return system.Addr() != nil }, 2*time.Second, time.Millisecond)
		system.Stop()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatalf("iteration %d: Start did not return after Stop", i)
		}
	}
}
