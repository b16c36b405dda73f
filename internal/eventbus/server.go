package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// ServerConfig configures the embedded NATS server.
type ServerConfig struct {
	Host      string
	Port      int
	JetStream bool
	StoreDir  string
}

// EmbeddedServer wraps a nats-server instance running in-process, so the
// daemon ships as a single binary with no external broker dependency.
type EmbeddedServer struct {
	srv     *server.Server
	cfg     ServerConfig
	mu      sync.RWMutex
	running bool
}

// NewEmbeddedServer constructs (but does not start) an embedded server.
func NewEmbeddedServer(cfg ServerConfig) (*EmbeddedServer, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port <= 0 {
		cfg.Port = 4222
	}
	if cfg.JetStream && cfg.StoreDir == "" {
		return nil, fmt.Errorf("StoreDir is required when JetStream is enabled")
	}
	return &EmbeddedServer{cfg: cfg}, nil
}

// Start launches the server and blocks until it accepts connections.
func (e *EmbeddedServer) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("eventbus server already running")
	}

	opts := &server.Options{
		Host:       e.cfg.Host,
		Port:       e.cfg.Port,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}
	if e.cfg.JetStream {
		opts.JetStream = true
		opts.StoreDir = e.cfg.StoreDir
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("creating embedded NATS server: %w", err)
	}

	e.srv = ns
	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("eventbus server did not become ready in time")
	}
	e.running = true
	return nil
}

// Shutdown stops the server and waits for it to finish draining.
func (e *EmbeddedServer) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || e.srv == nil {
		return
	}
	e.srv.Shutdown()
	e.srv.WaitForShutdown()
	e.running = false
	e.srv = nil
}

// URL returns the connection string clients should dial.
func (e *EmbeddedServer) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fmt.Sprintf("nats://%s:%d", e.cfg.Host, e.cfg.Port)
}

// IsRunning reports whether Start has completed successfully.
func (e *EmbeddedServer) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}
