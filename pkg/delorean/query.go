package delorean

import (
	"errors"
	"net"
	"time"

	wire "github.com/AndrewLester/delorean/internal/ntp"
	"github.com/beevik/ntp"
)

type ProbeResult struct {
	Offset  time.Duration
	Time    time.Time
	RTT     time.Duration
	Stratum uint8
	Err     time.Duration
}

var (
	ErrNoSync     = errors.New("server is not synchronized")
	ErrNoResponse = errors.New("server did not respond")
)

const probeTimeout = time.Second

// Probe queries an NTP server messages times and reports the sample with
// the lowest round trip. Each attempt signals progress when progress is
// non-nil.
func Probe(address string, messages int, progress chan<- struct{}) (*ProbeResult, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, wire.Port)
	}

	var best *ntp.Response
	var lastErr error
	for i := 0; i < messages; i++ {
		response, err := ntp.QueryWithOptions(address, ntp.QueryOptions{Timeout: probeTimeout})
		if progress != nil {
			progress <- struct{}{}
		}
		if err != nil {
			lastErr = err
			debug().Err(err).Str("server", address).Msg("Probe attempt failed")
			continue
		}

		// Exit early if the server admits it is not synced
		if response.Leap == ntp.LeapNotInSync {
			return nil, ErrNoSync
		}

		if best == nil || response.RTT < best.RTT {
			best = response
		}
	}

	if best == nil {
		if lastErr != nil {
			return nil, errors.Join(ErrNoResponse, lastErr)
		}
		return nil, ErrNoResponse
	}

	// lambda is error in a given sample's offset
	lambda := best.RootDelay/2 + best.RootDispersion + best.RTT

	return &ProbeResult{
		Offset:  best.ClockOffset,
		Time:    best.Time,
		RTT:     best.RTT,
		Stratum: best.Stratum,
		Err:     lambda,
	}, nil
}
