package delorean

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/AndrewLester/delorean/internal/ntp"
	"github.com/AndrewLester/delorean/internal/rpc"
)

const (
	DefaultHost   = "0.0.0.0"
	DefaultSocket = "/var/run/delorean.sock"
)

type DeloreanSystem struct {
	host   string
	port   string
	config string
	socket string

	workers   int
	overrides []PolicyChange

	engine    *Engine
	server    *Server
	rpcServer *rpc.DeloreanRPCServer
	conn      *net.UDPConn
	started   time.Time
	stopped   bool

	lock sync.Mutex
	wg   sync.WaitGroup
}

// NewSystem prepares a responder. Empty host and port fall back to the
// config file's listen directive, then to 0.0.0.0:123.
func NewSystem(host, port, config, socket string, opts ...EngineOption) *DeloreanSystem {
	return &DeloreanSystem{
		host:   host,
		port:   port,
		config: config,
		socket: socket,
		engine: NewEngine(opts...),
	}
}

// Apply queues a policy change to run after the config file's directives.
func (system *DeloreanSystem) Apply(change PolicyChange) error {
	if err := checkPolicy(change); err != nil {
		return err
	}

	system.lock.Lock()
	defer system.lock.Unlock()

	system.overrides = append(system.overrides, change)
	return nil
}

// SetWorkers overrides the config file's worker count.
func (system *DeloreanSystem) SetWorkers(workers int) error {
	if workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", workers)
	}

	system.lock.Lock()
	defer system.lock.Unlock()

	system.workers = workers
	return nil
}

// ResolveSocket returns the control socket path: the one given to
// NewSystem, else the config file's, else DefaultSocket.
func (system *DeloreanSystem) ResolveSocket() (string, error) {
	if system.socket != "" {
		return system.socket, nil
	}
	config, err := system.readConfig()
	if err != nil {
		return "", err
	}
	if config.socket != "" {
		return config.socket, nil
	}
	return DefaultSocket, nil
}

func (system *DeloreanSystem) readConfig() (deloreanConfig, error) {
	if system.config == "" {
		return deloreanConfig{workers: defaultWorkers}, nil
	}
	return parseConfigFile(system.config)
}

// Start applies the configured policy, binds the socket and answers
// queries until Stop is called.
func (system *DeloreanSystem) Start() error {
	config, err := system.readConfig()
	if err != nil {
		return err
	}

	system.lock.Lock()
	if system.stopped {
		system.lock.Unlock()
		return nil
	}

	for _, change := range append(config.policy, system.overrides...) {
		if err := system.engine.Apply(change.Kind, change.Value); err != nil {
			system.lock.Unlock()
			return fmt.Errorf("could not apply %s policy: %w", change.Kind, err)
		}
	}
	system.engine.SelectOffset()

	workers := system.workers
	if workers == 0 {
		workers = config.workers
		system.workers = workers
	}

	address, err := net.ResolveUDPAddr("udp", system.listenAddress(config))
	if err != nil {
		system.lock.Unlock()
		return fmt.Errorf("could not resolve listen address: %w", err)
	}

	conn, err := net.ListenUDP("udp", address)
	if err != nil {
		system.lock.Unlock()
		return fmt.Errorf("can't listen on %v/udp: %w", address, err)
	}
	system.conn = conn
	system.server = NewServer(system.engine, conn)
	system.started = time.Now()

	for i := 0; i < workers; i++ {
		system.wg.Add(1)
		go func(worker int) {
			defer system.wg.Done()
			if err := system.server.Serve(); err != nil {
				logger.Error().Err(err).Int("worker", worker).Msg("Worker exited")
			}
		}(i)
	}

	socket := system.socket
	if socket == "" {
		socket = config.socket
	}
	if socket == "" {
		socket = DefaultSocket
	}
	system.rpcServer = &rpc.DeloreanRPCServer{
		Socket:      socket,
		GetStatus:   system.Status,
		ApplyPolicy: system.applyLive,
	}

	system.wg.Add(1)
	go func() {
		if err := system.rpcServer.Listen(&system.wg); err != nil {
			logger.Error().Err(err).Str("socket", socket).Msg("Control socket unavailable")
		}
	}()

	info().Str("address", conn.LocalAddr().String()).Int("workers", workers).Msg("Listening")
	system.lock.Unlock()

	system.wg.Wait()
	return nil
}

func (system *DeloreanSystem) listenAddress(config deloreanConfig) string {
	if system.host == "" && system.port == "" && config.listen != "" {
		return config.listen
	}

	host, port := system.host, system.port
	if host == "" {
		host = DefaultHost
	}
	if port == "" {
		port = ntp.Port
	}
	return net.JoinHostPort(host, port)
}

// Stop ends the workers after their current receive and closes both
// sockets. Start then returns.
func (system *DeloreanSystem) Stop() {
	system.lock.Lock()
	defer system.lock.Unlock()

	system.stopped = true
	if system.server != nil {
		system.server.Stop()
	}
	if system.conn != nil {
		system.conn.Close()
	}
	if system.rpcServer != nil {
		system.rpcServer.Close()
	}
}

// Addr is the bound responder address, nil before Start.
func (system *DeloreanSystem) Addr() net.Addr {
	system.lock.Lock()
	defer system.lock.Unlock()

	if system.conn == nil {
		return nil
	}
	return system.conn.LocalAddr()
}

func (system *DeloreanSystem) Engine() *Engine {
	return system.engine
}

func (system *DeloreanSystem) Status() rpc.Status {
	system.lock.Lock()
	server := system.server
	status := rpc.Status{Started: system.started}
	if system.conn != nil {
		status.Listen = system.conn.LocalAddr().String()
	}
	status.Workers = system.workers
	system.lock.Unlock()

	policy := system.engine.Policy()
	status.BaseOffset = policy.BaseOffset
	status.SkimThreshold = policy.SkimThreshold
	status.SkimStep = policy.SkimStep
	status.ForcedStep = policy.ForcedStep
	status.ForcedDate = policy.ForcedDate
	status.Random = policy.Random
	status.Horizon = policy.Horizon

	for _, client := range system.engine.Seen() {
		status.Clients = append(status.Clients, rpc.SeenClient{Addr: client.Addr, LastSeen: client.LastSeen})
	}

	if server != nil {
		stats := server.Stats()
		status.Received = stats.Received
		status.Sent = stats.Sent
		status.Malformed = stats.Malformed
		status.Transient = stats.Transient
		status.Timeouts = stats.Timeouts
	}
	return status
}

// applyLive changes policy on a running responder. Changes that feed the
// offset choice take effect immediately.
func (system *DeloreanSystem) applyLive(change PolicyChange) error {
	if err := system.engine.Apply(change.Kind, change.Value); err != nil {
		return err
	}

	switch change.Kind {
	case PolicyStep, PolicyRandom, PolicyHorizon:
		system.engine.SelectOffset()
	}
	info().Str("policy", change.Kind).Str("value", change.Value).Msg("Policy changed")
	return nil
}

var errUnknownPolicy = errors.New("unknown policy")

func checkPolicy(change PolicyChange) error {
	switch change.Kind {
	case PolicySkimThreshold, PolicySkimStep, PolicyStep, PolicyHorizon:
		_, err := ParseDuration(change.Value)
		return err
	case PolicyDate:
		_, err := ParseDate(change.Value)
		return err
	case PolicyRandom:
		return nil
	default:
		return fmt.Errorf("%w %q", errUnknownPolicy, change.Kind)
	}
}
