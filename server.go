package nomagichttp

import (
	"log"
	"net"
	"os"
	"sync"
	"time"
)

// Logger is the one-method logging collaborator this engine accepts.
// The default writes to stderr via the standard log package.
type Logger interface {
	Printf(format string, args ...interface{})
}

var defaultLogger = Logger(log.New(os.Stderr, "", log.LstdFlags))

// ConnState is reported to Server.ConnState as a connection moves
// through its lifecycle.
type ConnState int

const (
	StateNew ConnState = iota
	StateActive
	StateIdle
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ServeHandler is the function a workerPool drives per accepted
// connection.
type ServeHandler func(net.Conn) error

// Router is the route-registry collaborator: implemented by the
// application, consumed by the engine only through this contract.
type Router interface {
	Lookup(segments []string) (Route, error)
}

// Route is the per-path collaborator a Router resolves to.
type Route interface {
	BeforeActions() []BeforeAction
	Handler() Handler
}

// BeforeAction is a user-registered filter run ahead of the Handler,
// able to Proceed or Abort exactly once via the Chain it's given.
type BeforeAction interface {
	Run(r *Request, chain *Chain) error
}

// ClientChannel is the surface a Handler writes through: zero or more
// interim 1xx responses and exactly one final response via Write, then
// return; ShutdownInput/ShutdownOutput/Close/IsOpenFor{Read,Write}
// expose the underlying Connection's lifecycle.
type ClientChannel struct {
	server *Server
	conn   *Connection
	req    *Request
	isHead bool

	wroteFinal   bool
	closeChannel bool
	writeErr     error
}

// Write processes and serializes resp to the socket immediately. final
// marks resp as the exchange's last response; at most one final
// response may be written per exchange.
func (ch *ClientChannel) Write(resp *Response, final bool) error {
	if ch.wroteFinal {
		return &IllegalBodyError{Msg: "a final response was already written for this exchange"}
	}
	pr, closeChannel, err := ch.server.writeOne(ch.conn, ch.req, resp, final, ch.isHead)
	if final {
		ch.wroteFinal = true
		ch.closeChannel = closeChannel || pr.CloseOutput
	}
	if err != nil {
		ch.writeErr = err
	}
	return err
}

func (ch *ClientChannel) ShutdownInput()       { ch.conn.ShutdownRead() }
func (ch *ClientChannel) ShutdownOutput()      { ch.conn.ShutdownWrite() }
func (ch *ClientChannel) Close() error         { return ch.conn.Close() }
func (ch *ClientChannel) IsOpenForRead() bool  { return ch.conn.IsOpenForRead() }
func (ch *ClientChannel) IsOpenForWrite() bool { return ch.conn.IsOpenForWrite() }

// Server is the public configuration surface: a single struct of
// exported fields with lazily-applied defaults.
type Server struct {
	Router        Router
	ErrorHandlers []ErrorHandler
	Logger        Logger

	MaxRequestHeadSize int
	MaxTrailerSize     int
	MaxErrorResponses  int
	MaxErrorRecovery   int

	IdleTimeout        time.Duration
	RequestBodyTimeout time.Duration
	ResponseTimeout    time.Duration

	RejectHTTP10  bool
	MaxConnsPerIP int

	// AllowLateProceed relaxes the before-action chain so Proceed or
	// Abort may be called again after a slot has already resolved.
	AllowLateProceed bool

	CompressResponses bool

	BufferCount int
	BufferSize  int

	Concurrency int

	ConnState func(net.Conn, ConnState)

	mu       sync.Mutex
	ln       []net.Listener
	stopping int32
	perIP    *ipLimiter
	workers  *workerPool

	chainOnce sync.Once
	chain     *errorChain
}

const (
	defaultBufferCount       = 5
	defaultBufferSize        = 16 * 1024
	defaultMaxErrorResponses = 16
	defaultMaxErrorRecovery  = 8
	defaultConcurrency       = 256 * 1024
)

func (s *Server) bufferCount() int {
	if s.BufferCount > 0 {
		return s.BufferCount
	}
	return defaultBufferCount
}

func (s *Server) bufferSize() int {
	if s.BufferSize > 0 {
		return s.BufferSize
	}
	return defaultBufferSize
}

func (s *Server) maxRequestHeadSize() int { return s.MaxRequestHeadSize }
func (s *Server) maxTrailerSize() int     { return s.MaxTrailerSize }

func (s *Server) maxErrorResponses() int {
	if s.MaxErrorResponses > 0 {
		return s.MaxErrorResponses
	}
	return defaultMaxErrorResponses
}

func (s *Server) maxErrorRecovery() int {
	if s.MaxErrorRecovery > 0 {
		return s.MaxErrorRecovery
	}
	return defaultMaxErrorRecovery
}

func (s *Server) logger() Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return defaultLogger
}

func (s *Server) getConcurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return defaultConcurrency
}

func (s *Server) errorChain() *errorChain {
	s.chainOnce.Do(func() {
		s.chain = newErrorChain(s.ErrorHandlers, s.maxErrorRecovery())
	})
	return s.chain
}

// ListenAndServe listens on the TCP network address addr and serves
// connections using s.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln until Shutdown is called,
// dispatching each to a worker from s's pool (one goroutine per
// connection).
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if len(s.ln) == 0 {
		startServerDateUpdater()
	}
	s.ln = append(s.ln, ln)
	if s.MaxConnsPerIP > 0 && s.perIP == nil {
		s.perIP = newIPLimiter()
	}
	if s.workers == nil {
		s.workers = &workerPool{
			WorkerFunc:            s.serveConn,
			MaxWorkersCount:       s.getConcurrency(),
			Logger:                s.logger(),
			connState:             s.connState,
			MaxIdleWorkerDuration: 10 * time.Second,
		}
		s.workers.Start()
	}
	s.mu.Unlock()

	var lastPerIPErrorTime time.Time
	for {
		c, err := acceptConn(s, ln, &lastPerIPErrorTime)
		if err != nil {
			if s.isStopping() {
				return nil
			}
			return err
		}
		s.connState(c, StateNew)
		if !s.workers.Serve(c) {
			s.logger().Printf("cannot handle connection %q<->%q: too many open connections", c.LocalAddr(), c.RemoteAddr())
			_ = c.Close()
			s.connState(c, StateClosed)
		}
	}
}

func (s *Server) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping != 0
}

func (s *Server) connState(c net.Conn, state ConnState) {
	if s.ConnState != nil {
		s.ConnState(c, state)
	}
}

// acceptConn accepts the next connection from ln, applying the per-IP
// connection limit if configured.
func acceptConn(s *Server, ln net.Listener, lastPerIPErrorTime *time.Time) (net.Conn, error) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return nil, err
		}
		if c == nil {
			panic("BUG: net.Listener returned (nil, nil)")
		}
		if s.MaxConnsPerIP > 0 {
			lc := s.limitPerIP(c)
			if lc == nil {
				if time.Since(*lastPerIPErrorTime) > time.Minute {
					s.logger().Printf("too many connections from %s", connIP(c))
					*lastPerIPErrorTime = time.Now()
				}
				continue
			}
			c = lc
		}
		return c, nil
	}
}

// limitPerIP admits c against the per-IP budget, returning nil (with c
// closed) when its IP is already at MaxConnsPerIP open connections.
func (s *Server) limitPerIP(c net.Conn) net.Conn {
	ip := connIP(c)
	if ip == "" {
		return c
	}
	if !s.perIP.acquire(ip, s.MaxConnsPerIP) {
		_ = c.Close()
		return nil
	}
	return &limitedConn{Conn: c, ip: ip, limiter: s.perIP}
}

// Shutdown closes the listeners so no new connections are accepted. Open
// connections are not cut: an exchange in flight, or one that starts later
// on an already open connection, runs to completion, and its final
// response carries Connection: close.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	s.stopping = 1
	lns := s.ln
	workers := s.workers
	s.mu.Unlock()

	var err error
	for _, ln := range lns {
		if e := ln.Close(); e != nil && err == nil {
			err = e
		}
	}
	if workers != nil {
		workers.Stop()
	}
	if len(lns) > 0 {
		stopServerDateUpdater()
	}
	return err
}

// serveConn is the exchange loop: parse a request, dispatch to the
// application, write its response(s), and either loop for another
// exchange on the same connection or close it.
func (s *Server) serveConn(nc net.Conn) error {
	conn := newConnection(nc, s.bufferCount(), s.bufferSize())
	defer conn.Close()

	for {
		s.connState(nc, StateActive)
		persist, err := s.runExchange(conn)
		if err != nil {
			return err
		}
		if !persist {
			return nil
		}
		s.connState(nc, StateIdle)
	}
}

// runExchange drives exactly one request/response pair. It returns
// persist=false when the connection must close after this exchange
// (Connection: close seen anywhere, HTTP/1.0 without keep-alive, read
// side already shut down, or the error-response budget was exhausted).
func (s *Server) runExchange(conn *Connection) (persist bool, err error) {
	head, err := readHead(conn.Reader, s.maxRequestHeadSize())
	if err != nil {
		if isClientAbort(err) {
			return false, nil // nothing received yet: silent close, no error response
		}
		s.writeRecovery(conn, nil, err, false)
		return false, nil
	}

	ph, err := parseHead(head, s.maxRequestHeadSize())
	if err != nil {
		s.writeRecovery(conn, nil, err, false)
		return false, nil
	}

	if s.RejectHTTP10 && ph.Line.VersionMajor == 1 && ph.Line.VersionMinor == 0 {
		resp := NewResponse(505, "HTTP Version Not Supported")
		resp.Headers.Set(strConnection, strClose)
		s.writeOne(conn, nil, resp, true, false)
		return false, nil
	}

	req, err := buildRequest(conn.Reader, ph, 0, s.maxTrailerSize())
	if err != nil {
		s.writeRecovery(conn, nil, err, false)
		return false, nil
	}

	isHead := b2s(req.Method) == "HEAD"
	ch := &ClientChannel{server: s, conn: conn, req: req, isHead: isHead}

	if s.RequestBodyTimeout > 0 && req.BodyKind != BodyEmpty {
		_ = conn.Conn.SetReadDeadline(time.Now().Add(s.RequestBodyTimeout))
	}

	if derr := s.dispatch(conn, req, ch); derr != nil && !ch.wroteFinal {
		s.writeRecovery(conn, req, derr, isHead)
	} else if !ch.wroteFinal {
		// Handler returned without error and without writing a final
		// response: treat as an application error (nothing to send).
		s.writeRecovery(conn, req, &ParseError{Kind: "Application", Msg: "handler returned without a final response"}, isHead)
	}

	// Discard any un-consumed body so the next request-line parse starts
	// at the right offset.
	if req.Body != nil {
		if derr := req.Body.Discard(); derr == ErrRequestBodyTimeout {
			conn.ShutdownRead()
			return false, nil
		}
	}
	if s.RequestBodyTimeout > 0 && req.BodyKind != BodyEmpty {
		_ = conn.Conn.SetReadDeadline(time.Time{})
	}

	if ch.closeChannel || ch.writeErr != nil {
		return false, nil
	}
	if !req.IsHTTP11() && !req.Headers.HasToken(strConnection, []byte("keep-alive")) {
		return false, nil
	}
	if !conn.IsOpenForRead() {
		return false, nil
	}
	return true, nil
}

// dispatch runs the matched route's before-actions then its handler.
// The handler itself writes responses through ch; dispatch only reports
// an error that the exchange loop should hand to the error chain.
func (s *Server) dispatch(conn *Connection, req *Request, ch *ClientChannel) error {
	var route Route
	if s.Router != nil {
		r, err := s.Router.Lookup(req.Target.Segments())
		if err != nil {
			return err
		}
		route = r
	}
	if route == nil {
		resp := NewResponse(404, "Not Found")
		resp.SetBodyBytes(nil)
		return ch.Write(resp, true)
	}

	for _, ba := range route.BeforeActions() {
		// Each action gets its own resolve-exactly-once slot; a plain
		// return resolves it as an implicit proceed.
		chain := &Chain{AllowLateProceed: s.AllowLateProceed}
		if err := ba.Run(req, chain); err != nil {
			return err
		}
		if chain.aborted {
			return ch.Write(chain.abortResponse, true)
		}
		chain.resolved = true
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- asError(rec)
			}
		}()
		done <- route.Handler().Serve(req, ch)
	}()

	if s.ResponseTimeout > 0 {
		select {
		case err := <-done:
			return err
		case <-time.After(s.ResponseTimeout):
			if ch.wroteFinal {
				return nil
			}
			resp := NewResponse(503, "Service Unavailable")
			resp.Headers.Set(strConnection, strClose)
			return ch.Write(resp, true)
		}
	}
	return <-done
}

func asError(rec interface{}) error {
	if err, ok := rec.(error); ok {
		return err
	}
	if str, ok := rec.(string); ok {
		return &ParseError{Kind: "Application", Msg: "panic: " + str}
	}
	return &ParseError{Kind: "Application", Msg: "panic in handler"}
}

// writeRecovery hands err to the error chain and writes its substitute
// response as the exchange's final response.
func (s *Server) writeRecovery(conn *Connection, req *Request, err error, isHead bool) {
	resp := s.errorChain().Recover(err, req, nil)
	s.writeOne(conn, req, resp, true, isHead)
}

// writeOne runs one response through processResponse and writeResponse.
// If the processor itself rejects the response (a framing error), the
// error chain produces a safe substitute and that is written instead.
func (s *Server) writeOne(conn *Connection, req *Request, resp *Response, isFinal, isHead bool) (*preparedResponse, bool, error) {
	if !isInformational(resp.Status) {
		if !resp.Headers.Has(strDate) {
			resp.Headers.Set(strDate, getServerDate())
		}
		if !resp.Headers.Has(strServer) {
			resp.Headers.Set(strServer, defaultServerName)
		}
		if resp.BodyLength != 0 && !resp.Headers.Has(strContentType) {
			resp.Headers.Set(strContentType, defaultContentType)
		}
	}
	if s.CompressResponses && !isHead {
		maybeCompressResponse(req, resp)
	}
	cfg := responseProcessorConfig{
		MaxErrorResponses: s.maxErrorResponses(),
		ServerStopping:    s.isStopping(),
	}
	pr, err := processResponse(resp, req, isFinal, &conn.Attrs, cfg)
	if err != nil {
		resp = s.errorChain().Recover(err, req, nil)
		pr, err = processResponse(resp, req, isFinal, &conn.Attrs, cfg)
		if err != nil {
			resp = NewResponse(500, "Internal Server Error")
			resp.Headers.Set(strConnection, strClose)
			resp.Headers.Set(strContentLength, []byte("0"))
			pr = &preparedResponse{Response: resp, Body: emptyResponseBody{}, CloseOutput: true, CloseChannel: true}
		}
	}

	_, werr := writeResponse(conn.Conn, pr, isHead, s.IdleTimeout)
	if werr != nil {
		conn.ShutdownWrite()
		return pr, true, werr
	}
	if pr.CloseOutput {
		conn.ShutdownWrite()
	}
	return pr, pr.CloseChannel, nil
}

// isClientAbort reports whether err indicates the peer went away before
// any byte of a new request arrived, which gets a silent close rather
// than an error response.
func isClientAbort(err error) bool {
	return err == ErrEndOfStream || err == ErrClosedStream
}
