package delorean

import (
	"errors"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/AndrewLester/delorean/internal/ntp"
	"golang.org/x/net/ipv4"
)

const MTU = 1300

const (
	defaultReceiveTimeout = 5 * time.Second

	// Replies sent per query while creeping. Each copy is computed on its
	// own so jitter tolerant clients see slightly different times.
	skimCopies = 10
)

type Stats struct {
	Received  uint64
	Sent      uint64
	Malformed uint64
	Transient uint64
	Timeouts  uint64
}

// Server answers queries on one socket. Serve may run on several goroutines
// at once; they share the engine.
type Server struct {
	engine *Engine
	conn   *ipv4.PacketConn

	// control is set when the socket reports each datagram's destination,
	// which lets replies leave from the address the client targeted.
	control bool

	ReceiveTimeout time.Duration

	stopped atomic.Bool

	received  atomic.Uint64
	sent      atomic.Uint64
	malformed atomic.Uint64
	transient atomic.Uint64
	timeouts  atomic.Uint64
}

func NewServer(engine *Engine, conn net.PacketConn) *Server {
	packetConn := ipv4.NewPacketConn(conn)

	control := true
	if err := packetConn.SetControlMessage(ipv4.FlagDst, true); err != nil {
		debug().Err(err).Msg("Destination addresses unavailable, replying from the default route")
		control = false
	}

	return &Server{
		engine:         engine,
		conn:           packetConn,
		control:        control,
		ReceiveTimeout: defaultReceiveTimeout,
	}
}

// Serve handles datagrams until Stop is called or the socket is closed.
// Per-datagram failures are counted and never returned.
func (s *Server) Serve() error {
	packet := make([]byte, MTU)

	for !s.stopped.Load() {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.ReceiveTimeout)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
		}

		n, cm, addr, err := s.conn.ReadFrom(packet)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				s.timeouts.Add(1)
				continue
			}

			s.transient.Add(1)
			debug().Err(err).Msg("Receive failed")
			continue
		}

		s.received.Add(1)
		s.handle(packet[:n], cm, addr)
	}

	return nil
}

// Stop keeps Serve from starting another receive. A reply in progress
// still completes.
func (s *Server) Stop() {
	s.stopped.Store(true)
}

func (s *Server) Stats() Stats {
	return Stats{
		Received:  s.received.Load(),
		Sent:      s.sent.Load(),
		Malformed: s.malformed.Load(),
		Transient: s.transient.Load(),
		Timeouts:  s.timeouts.Load(),
	}
}

func (s *Server) handle(packet []byte, cm *ipv4.ControlMessage, addr net.Addr) {
	query, err := ntp.DecodeQuery(packet)
	if err != nil {
		s.malformed.Add(1)
		debug().Err(err).Str("client", addr.String()).Msg("Dropped query")
		return
	}

	client := hostOf(addr)
	if s.engine.ReseedIfStale(client, s.engine.Now()) {
		debug().Str("client", client).Msg("Reseeded offset")
	}

	copies := 1
	if s.engine.Skimming() {
		copies = skimCopies
	}

	replyControl := s.replyControl(cm)
	delta := s.engine.EpochDelta()

	for i := 0; i < copies; i++ {
		timestamp := s.engine.ComputeTimestamp(query.Xmt.Float() - delta)
		response := Build(query, timestamp, delta)

		if _, err := s.conn.WriteTo(ntp.EncodeResponse(response), replyControl, addr); err != nil {
			s.transient.Add(1)
			debug().Err(err).Str("client", client).Msg("Send failed")
			return
		}
		s.sent.Add(1)

		if i == 0 {
			info().
				Str("client", client).
				Str("profile", response.Label).
				Time("reported", ntp.SecondsToTime(timestamp)).
				Msg("Sent forged time")
		}
	}
}

func (s *Server) replyControl(cm *ipv4.ControlMessage) *ipv4.ControlMessage {
	if !s.control || cm == nil || cm.Dst == nil {
		return nil
	}
	if cm.Dst.IsMulticast() || cm.Dst.Equal(net.IPv4bcast) {
		return nil
	}
	return &ipv4.ControlMessage{Src: cm.Dst}
}

// hostOf keys clients by IP so a new source port is still the same client.
func hostOf(addr net.Addr) string {
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		return udpAddr.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
