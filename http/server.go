package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var ErrServerNotRunning = errors.New("http: server not running")

// Options configures a Server. Zero values fall back to the documented
// defaults.
type Options struct {
	Port           uint16 // default 8080
	Workers        int    // default hardware parallelism
	QueueDepth     int    // default 64 x workers
	ReadBufferSize int    // default 16 KiB
	Logger         *slog.Logger
}

// Server owns the listening socket, the worker pool, the router, the
// plugin list and the middleware list. One accepted connection is one
// request is one worker task.
type Server struct {
	port           uint16
	workers        int
	queueDepth     int
	readBufferSize int

	listener net.Listener
	pool     *WorkerPool
	router   *Router

	plugins     []Plugin
	middlewares []Middleware

	running  atomic.Bool
	shutdown chan struct{}
	stopped  chan struct{}

	activeConnections atomic.Int64
	totalRequests     atomic.Uint64

	logger *slog.Logger

	requestCounter metric.Int64Counter
	activeCounter  metric.Int64UpDownCounter
}

func NewServer(opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = DefaultReadBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	meter := otel.Meter("github.com/freekieb7/mortar/http")
	requestCounter, _ := meter.Int64Counter("server.requests",
		metric.WithDescription("Total requests accepted"),
		metric.WithUnit("{request}"))
	activeCounter, _ := meter.Int64UpDownCounter("server.connections.active",
		metric.WithDescription("Connections currently being served"),
		metric.WithUnit("{connection}"))

	return &Server{
		port:           opts.Port,
		workers:        opts.Workers,
		queueDepth:     opts.QueueDepth,
		readBufferSize: opts.ReadBufferSize,
		router:         NewRouter(),
		shutdown:       make(chan struct{}),
		stopped:        make(chan struct{}),
		logger:         opts.Logger,
		requestCounter: requestCounter,
		activeCounter:  activeCounter,
	}
}

// Router exposes the server's route table for direct registration.
func (s *Server) Router() *Router {
	return s.router
}

// Use appends middleware to the pipeline. Must not be called after Start.
func (s *Server) Use(m Middleware) {
	s.middlewares = append(s.middlewares, m)
}

func (s *Server) Port() uint16 { return s.port }
func (s *Server) Running() bool { return s.running.Load() }
func (s *Server) ActiveConnections() int64 { return s.activeConnections.Load() }
func (s *Server) TotalRequests() uint64 { return s.totalRequests.Load() }

// ShutdownSignal is closed when Stop begins; streaming continuations
// receive it as their cancellation flag.
func (s *Server) ShutdownSignal() <-chan struct{} {
	return s.shutdown
}

// Start publishes plugin routes and middleware, runs the plugin start
// hooks, binds the listener and blocks in the accept loop until Stop.
func (s *Server) Start() error {
	if s.running.Load() {
		return ErrServerStarted
	}

	if err := s.publishPlugins(); err != nil {
		return err
	}
	if err := s.startPlugins(); err != nil {
		return err
	}

	listener, err := Listen(fmt.Sprintf("0.0.0.0:%d", s.port))
	if err != nil {
		s.stopPlugins()
		return err
	}
	s.listener = listener
	s.pool = NewWorkerPool(s.workers, s.queueDepth, s.logger)
	s.running.Store(true)

	s.logger.Info("server listening", "addr", listener.Addr().String(), "workers", s.workers)

	s.acceptLoop()

	// Stop owns the teardown; wait for it to finish before returning to
	// the caller that blocked in Start.
	<-s.stopped
	return nil
}

// Stop halts the accept loop, drains the worker pool and runs the plugin
// stop sequence. Safe to call from any goroutine; only the first call
// acts.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	close(s.shutdown)
	if s.listener != nil {
		s.listener.Close()
	}
	s.pool.Shutdown()
	s.stopPlugins()

	s.logger.Info("server stopped",
		"total_requests", s.totalRequests.Load(),
		"active_connections", s.activeConnections.Load(),
	)
	close(s.stopped)
}

func (s *Server) acceptLoop() {
	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept error", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		s.activeCounter.Add(context.Background(), 1)

		task := func() {
			defer func() {
				conn.Close()
				s.activeConnections.Add(-1)
				s.activeCounter.Add(context.Background(), -1)
			}()
			s.handleConn(conn)
		}

		if err := s.pool.TrySubmit(task); err != nil {
			// Queue saturated: shed load with a 503 instead of blocking
			// the accept loop.
			resp := NewResponse()
			resp.SetStatus(StatusServiceUnavailable)
			resp.SetHeader("Content-Type", "text/plain")
			resp.SetBody([]byte("service unavailable"))
			conn.Write(resp.Build())
			conn.Close()
			s.activeConnections.Add(-1)
			s.activeCounter.Add(context.Background(), -1)
		}
	}
}

// handleConn is the per-connection task: one read, one parse, one pipeline
// run, one serialized response (or a stream hand-off).
func (s *Server) handleConn(conn net.Conn) {
	buf := make([]byte, s.readBufferSize)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return
	}

	req, perr := ParseRequest(buf[:n])
	if perr != nil {
		s.logger.Warn("bad request", "remote", conn.RemoteAddr().String(), "error", perr)
		resp := NewResponse()
		resp.SetStatus(StatusBadRequest)
		resp.SetHeader("Content-Type", "text/plain")
		resp.SetBody([]byte(perr.Error()))
		conn.Write(resp.Build())
		return
	}

	s.totalRequests.Add(1)
	s.requestCounter.Add(context.Background(), 1)

	ctx := NewContext(req, NewResponse())
	s.dispatch(ctx)

	if fn := ctx.StreamFunc(); fn != nil {
		// Stream continuation: the handler owns the body; buffered
		// serialization is skipped.
		if err := fn(conn, s.shutdown); err != nil {
			s.logger.Warn("stream ended", "path", req.Path, "error", err)
		}
		return
	}

	if _, err := conn.Write(ctx.Response.Build()); err != nil {
		s.logger.Warn("response write failed", "remote", conn.RemoteAddr().String(), "error", err)
	}
}

// dispatch runs the middleware chain into the router. Handler panics are
// contained here, at the worker boundary.
func (s *Server) dispatch(ctx *Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("unhandled panic in pipeline",
				"method", ctx.Request.Method.String(),
				"path", ctx.Request.Path,
				"panic", r,
			)
			ctx.Response.SetStatus(StatusInternalServerError)
			ctx.Response.SetHeader("Content-Type", "text/html")
			ctx.Response.SetBody([]byte("<h1>500 - Internal Server Error</h1>"))
		}
	}()

	runChain(ctx, s.middlewares, func(ctx *Context) {
		if s.router.Match(ctx) {
			return
		}
		if allowed := s.router.Allowed(ctx.Request.Path); len(allowed) > 0 {
			allow := ""
			for i, m := range allowed {
				if i > 0 {
					allow += ", "
				}
				allow += m.String()
			}
			ctx.Status(StatusMethodNotAllowed).
				SetHeader("Allow", allow).
				HTML("<h1>405 - Method Not Allowed</h1>")
			return
		}
		ctx.Status(StatusNotFound).HTML("<h1>404 - Not Found</h1>")
	})
}
