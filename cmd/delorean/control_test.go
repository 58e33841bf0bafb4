package main

import (
	"testing"
	"time"

	deloreanrpc "github.com/AndrewLester/delorean/internal/rpc"
	"github.com/AndrewLester/delorean/pkg/delorean"
	"github.com/stretchr/testify/assert"
)

func TestClientRows(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	status := deloreanrpc.Status{Clients: []deloreanrpc.SeenClient{
		{Addr: "192.0.2.1", LastSeen: now.Add(-90 * time.Second)},
		{Addr: "192.0.2.2", LastSeen: now},
	}}

	rows := clientRows(status, now)
	assert.Len(t, rows, 2)
	assert.Equal(t, "192.0.2.1", rows[0][0])
	assert.Equal(t, "1m30s ago", rows[0][2])
	assert.Equal(t, "0s ago", rows[1][2])
}

func TestPolicySummary(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "Random future time per client", policySummary(deloreanrpc.Status{Random: true}, now))
	assert.Contains(t, policySummary(deloreanrpc.Status{BaseOffset: 86400}, now), "Offset 24h0m0s")

	skimming := policySummary(deloreanrpc.Status{BaseOffset: 86400, SkimThreshold: 3600, SkimStep: 82800}, now)
	assert.Contains(t, skimming, "creeping from 1h0m0s to 24h0m0s")

	assert.Contains(t, policySummary(deloreanrpc.Status{ForcedDate: 1_900_000_000}, now), "Pinned to")
}

func TestFormatProbe(t *testing.T) {
	result := &delorean.ProbeResult{
		Offset:  90 * 24 * time.Hour,
		Err:     3 * time.Millisecond,
		Stratum: 3,
		Time:    time.Date(2027, 1, 17, 12, 0, 0, 0, time.UTC),
	}

	formatted := formatProbe("127.0.0.1:123", result)
	assert.Contains(t, formatted, "+2160h0m0s +/- 3ms 127.0.0.1:123 127.0.0.1")
	assert.Contains(t, formatted, "stratum 3")
}
