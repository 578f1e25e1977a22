package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/services/executor"
	"github.com/vishnukl-alation/hive/internal/tcp/channel"
	"github.com/vishnukl-alation/hive/internal/tcp/connectionmanager"
	"github.com/vishnukl-alation/hive/internal/tcp/defs"
	"github.com/vishnukl-alation/hive/internal/tcp/handlers"
	"github.com/vishnukl-alation/hive/internal/tcp/publishers"
)

// TCPServer accepts coordinator connections and feeds their jobs to the executor
type TCPServer struct {
	address       string
	helloTimeout  time.Duration
	executor      executor.IExecutorService
	logger        primary.Logger
	listener      net.Listener
	connectionMgr *connectionmanager.ConnectionManager
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	handlers      map[byte]primary.MessageHandler
}

// TCPServerOption configures a TCPServer
type TCPServerOption func(*TCPServer)

// WithAddress sets the server address
func WithAddress(address string) TCPServerOption {
	return func(s *TCPServer) {
		s.address = address
	}
}

// WithHelloTimeout sets how long a new connection may stay unregistered
func WithHelloTimeout(d time.Duration) TCPServerOption {
	return func(s *TCPServer) {
		s.helloTimeout = d
	}
}

// NewTCPServer creates a new TCP server
func NewTCPServer(
	executorService executor.IExecutorService,
	logger primary.Logger,
	options ...TCPServerOption,
) *TCPServer {
	server := &TCPServer{
		address:       ":9000", // Default address
		helloTimeout:  defs.InitialRegistrationTimeout,
		executor:      executorService,
		logger:        logger,
		connectionMgr: connectionmanager.NewConnectionManager(logger),
		stopCh:        make(chan struct{}),
	}

	// Apply options
	for _, option := range options {
		option(server)
	}

	// Register message handlers
	server.setupMessageHandlers()

	return server
}

// setupMessageHandlers registers all message handlers
func (s *TCPServer) setupMessageHandlers() {
	s.handlers = map[byte]primary.MessageHandler{
		defs.MsgClientHello: &handlers.ClientHelloHandler{Executor: s.executor, Logger: s.logger},
		defs.MsgSubmitJob:   &handlers.SubmitJobHandler{Executor: s.executor, Logger: s.logger},
		defs.MsgCancelJob:   &handlers.CancelJobHandler{Executor: s.executor, Logger: s.logger},
	}
}

// Start starts the TCP server
func (s *TCPServer) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}

	s.logger.Info("TCP server listening", "address", s.listener.Addr().String())

	// Accept connections in a goroutine
	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Addr returns the bound listener address
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every client connection, then waits for the
// connection goroutines until ctx expires
func (s *TCPServer) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	// Close listener
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("Failed to close listener", "error", err)
		}
	}

	// Close all connections
	s.connectionMgr.CloseAll()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectionManager exposes the registered client channels
func (s *TCPServer) ConnectionManager() *connectionmanager.ConnectionManager {
	return s.connectionMgr
}

// acceptConnections accepts incoming connections
func (s *TCPServer) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.logger.Error("Failed to accept connection", "error", err)
				time.Sleep(defs.ConnectionRetryDelay) // Avoid tight loop on error
				continue
			}
		}

		s.logger.Debug("Accepted connection", "remote", conn.RemoteAddr().String())

		// Handle connection in a goroutine
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeChannel(context.Background(), channel.NewConnChannel(conn, s.logger))
		}()
	}
}

type session struct {
	channel.Channel
	reporter *publishers.JobEnvelopePublisher
}

func (s *session) Reporter() primary.JobReporter {
	return s.reporter
}

// ServeChannel runs the message loop of one coordinator until the channel
// closes. Jobs still running for the coordinator are abandoned on exit.
func (s *TCPServer) ServeChannel(ctx context.Context, ch channel.Channel) {
	sess := &session{
		Channel:  ch,
		reporter: publishers.NewJobEnvelopePublisher(ch, s.logger),
	}

	var clientID string
	defer func() {
		if clientID != "" {
			s.connectionMgr.RemoveClient(clientID, ch)
			s.logger.Info("Client disconnected", "clientID", clientID)
		}
		if n := s.executor.Abandon(sess.reporter); n > 0 {
			s.logger.Warn("Cancelled jobs of disconnected client", "clientID", clientID, "count", n)
		}
		_ = ch.Close()
	}()

	// Set initial timeout for registration
	hello := time.NewTimer(s.helloTimeout)
	defer hello.Stop()

	for {
		var helloDeadline <-chan time.Time
		if clientID == "" {
			helloDeadline = hello.C
		}

		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-helloDeadline:
			s.logger.Warn("Client did not say hello in time", "timeout", s.helloTimeout)
			connectionmanager.SendErrorMessage(ch, defs.ErrCodeNotRegistered, "Registration timeout")
			return
		case msg, ok := <-ch.Receive():
			if !ok {
				if err := ch.Err(); err != nil {
					s.logger.Debug("Channel closed", "clientID", clientID, "reason", err)
				}
				return
			}

			if clientID == "" && msg.Type != defs.MsgClientHello {
				s.logger.Error("Message before hello", "type", defs.MessageName(msg.Type))
				connectionmanager.SendErrorMessage(ch, defs.ErrCodeNotRegistered, "Client not registered")
				return
			}

			// Find handler for message type
			handler, exists := s.handlers[msg.Type]
			if !exists {
				s.logger.Error("Unknown message type", "type", msg.Type)
				connectionmanager.SendErrorMessage(ch, defs.ErrCodeUnknownMessage, fmt.Sprintf("Unknown message type: %d", msg.Type))
				continue
			}

			if err := handler.HandleMessage(ctx, sess, msg.Payload, &clientID); err != nil {
				s.logger.Error("Error handling message", "type", defs.MessageName(msg.Type), "error", err)
				return
			}

			// After successful registration the connection becomes addressable
			if msg.Type == defs.MsgClientHello && clientID != "" {
				s.connectionMgr.RegisterClient(clientID, ch)
			}
		}
	}
}
