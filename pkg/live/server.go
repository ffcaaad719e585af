// Package live exposes a reactive store over HTTP and WebSocket.
//
// Cells and stores are single-goroutine structures. The server owns a run
// loop that is the only goroutine touching the store; every HTTP handler
// and WebSocket reader posts its operation to the loop and waits for it to
// be applied. WebSocket clients receive a snapshot on connect and a change
// frame for every subsequent cell update.
package live

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cellflow-dev/cellflow/pkg/store"
)

// ErrClosed is returned by operations posted after Close.
var ErrClosed = errors.New("live: server closed")

// Config configures the live server.
type Config struct {
	// Address is the listen address for ListenAndServe (default: ":8080").
	Address string

	// ReadBufferSize is the WebSocket read buffer size in bytes.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size in bytes.
	WriteBufferSize int

	// CheckOrigin validates WebSocket upgrade origins.
	// Default: same-origin only (gorilla's default).
	CheckOrigin func(*http.Request) bool

	// WriteTimeout bounds each WebSocket write.
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown in ListenAndServe.
	ShutdownTimeout time.Duration

	// SendBuffer is the per-client outbound frame buffer. A client that
	// falls this many frames behind is disconnected.
	SendBuffer int

	// Logger is the structured logger (default: slog.Default).
	Logger *slog.Logger

	// TracerName is the OpenTelemetry tracer name (default: "cellflow").
	TracerName string
}

// Option configures the live server.
type Option func(*Config)

// WithAddress sets the listen address.
func WithAddress(addr string) Option {
	return func(c *Config) {
		c.Address = addr
	}
}

// WithCheckOrigin sets the WebSocket origin check.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *Config) {
		c.CheckOrigin = fn
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithSendBuffer sets the per-client outbound frame buffer.
func WithSendBuffer(n int) Option {
	return func(c *Config) {
		c.SendBuffer = n
	}
}

// WithTracerName sets the OpenTelemetry tracer name.
func WithTracerName(name string) Option {
	return func(c *Config) {
		c.TracerName = name
	}
}

func defaultConfig() Config {
	return Config{
		Address:         ":8080",
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SendBuffer:      64,
		TracerName:      "cellflow",
	}
}

// Server serves a store over HTTP and WebSocket.
type Server struct {
	store    *store.Store
	config   Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
	tracer   trace.Tracer

	ops       chan op
	closed    chan struct{}
	closeOnce sync.Once
	loopDone  chan struct{}
}

type op struct {
	fn   func()
	done chan struct{}
}

// NewServer creates a server around s and starts its run loop. The store
// must not be touched from other goroutines once the server owns it.
func NewServer(s *store.Store, opts ...Option) *Server {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "live")

	srv := &Server{
		store:  s,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger:   logger,
		tracer:   otel.Tracer(config.TracerName),
		ops:      make(chan op),
		closed:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go srv.loop()
	return srv
}

// Store returns the store the server owns.
func (s *Server) Store() *store.Store {
	return s.store
}

// loop applies posted operations one at a time. It is the only goroutine
// that touches the store.
func (s *Server) loop() {
	defer close(s.loopDone)
	for {
		select {
		case o := <-s.ops:
			s.apply(o)
		case <-s.closed:
			return
		}
	}
}

func (s *Server) apply(o op) {
	defer close(o.done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("operation panicked", "panic", r)
		}
	}()
	o.fn()
}

// do runs fn on the run loop and waits for it to complete. A traced span
// named after the operation covers queueing and execution.
func (s *Server) do(ctx context.Context, name string, fn func()) error {
	ctx, span := s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("cellflow.op", name)),
	)
	defer span.End()

	o := op{fn: fn, done: make(chan struct{})}
	select {
	case s.ops <- o:
	case <-s.closed:
		span.RecordError(ErrClosed)
		span.SetStatus(codes.Error, ErrClosed.Error())
		return ErrClosed
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, ctx.Err().Error())
		return ctx.Err()
	}

	// Once posted the operation always runs; waiting is not cancelable or
	// the handler would race the loop over request-scoped state.
	select {
	case <-o.done:
		span.SetStatus(codes.Ok, "")
		return nil
	case <-s.loopDone:
		span.RecordError(ErrClosed)
		span.SetStatus(codes.Error, ErrClosed.Error())
		return ErrClosed
	}
}

// Close stops the run loop. Posted operations that have not started are
// abandoned; in-flight HTTP requests receive ErrClosed.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	<-s.loopDone
}

// ListenAndServe serves the handler on the configured address until ctx is
// canceled, then shuts down gracefully and stops the run loop.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.config.Address)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		s.Close()
		return err
	case err := <-errCh:
		s.Close()
		return err
	}
}
