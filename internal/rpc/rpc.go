package rpc

import (
	"errors"
	"fmt"
	"net"
	netrpc "net/rpc"
	"os"
	"sync"
	"time"
)

const (
	FetchStatusMethod = "DeloreanRPCServer.FetchStatus"
	SetPolicyMethod   = "DeloreanRPCServer.SetPolicy"
)

// PolicyChange names one policy setter and its argument. Value is empty for
// random.
type PolicyChange struct {
	Kind  string
	Value string
}

type SeenClient struct {
	Addr     string
	LastSeen time.Time
}

type Status struct {
	Listen  string
	Workers int
	Started time.Time

	BaseOffset    float64
	SkimThreshold float64
	SkimStep      float64
	ForcedStep    float64
	ForcedDate    float64
	Random        bool
	Horizon       float64

	Clients []SeenClient

	Received  uint64
	Sent      uint64
	Malformed uint64
	Transient uint64
	Timeouts  uint64
}

type DeloreanRPCServer struct {
	Socket string

	GetStatus   func() Status
	ApplyPolicy func(change PolicyChange) error

	lock     sync.Mutex
	listener net.Listener
	closed   bool
}

// Listen binds the unix socket, replacing a stale one, and serves until
// Close. It is meant to run on its own goroutine. A Close that lands before
// the socket is bound still ends it.
func (s *DeloreanRPCServer) Listen(wg *sync.WaitGroup) error {
	defer wg.Done()

	err := os.Remove(s.Socket)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("bind error: %w", err)
	}

	l, err := net.Listen("unix", s.Socket)
	if err != nil {
		return fmt.Errorf("listen error: %w", err)
	}

	return s.Serve(l)
}

func (s *DeloreanRPCServer) Serve(l net.Listener) error {
	server := netrpc.NewServer()
	if err := server.RegisterName("DeloreanRPCServer", s); err != nil {
		l.Close()
		return err
	}

	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return l.Close()
	}
	s.listener = l
	s.lock.Unlock()

	// Returns once the listener is closed.
	server.Accept(l)
	return nil
}

func (s *DeloreanRPCServer) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.closed = true
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

func (s *DeloreanRPCServer) FetchStatus(args int, reply *Status) error {
	*reply = s.GetStatus()
	return nil
}

func (s *DeloreanRPCServer) SetPolicy(args PolicyChange, reply *Status) error {
	if err := s.ApplyPolicy(args); err != nil {
		return err
	}
	*reply = s.GetStatus()
	return nil
}

func Dial(socket string) (*netrpc.Client, error) {
	return netrpc.Dial("unix", socket)
}
