package transport

import (
	"log/slog"
	"net"

	"github.com/google/uuid"
)

// Handler processes one decoded request payload and returns the response
// payload to frame back to the caller. Handlers must never block on
// cryptographic material longer than the single operation requires, and
// must never panic past this boundary uncaught — see Serve's recover.
type Handler func(request []byte) (response []byte)

// Server accepts connections on a single listener and serves them
// sequentially, one request/response per connection, matching
// spec.md §4.1's "single-threaded per connection, no pipelining" model.
type Server struct {
	Listener     net.Listener
	Handler      Handler
	MaxFrameSize uint32
	Logger       *slog.Logger
	// PanicResponse builds the response frame emitted when Handler panics.
	// The executor wires this to encode an UnrecoverableState protocol
	// error; if nil, a panic yields an empty response frame.
	PanicResponse func(recovered any) []byte
}

// NewServer constructs a Server with the package default max frame size
// and slog.Default() if no logger is supplied.
func NewServer(ln net.Listener, handler Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Listener:     ln,
		Handler:      handler,
		MaxFrameSize: DefaultMaxFrameSize,
		Logger:       logger,
	}
}

// Serve accepts connections until the listener is closed, handling each
// one synchronously and sequentially before accepting the next — the
// spec is explicit that concurrency is unnecessary here and that
// eliminating it eliminates a class of bugs on the hot path for secrets.
func (s *Server) Serve() error {
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			return err
		}
		s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	connID := uuid.New().String()
	logger := s.Logger.With(slog.String("conn_id", connID))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in connection handler, recovering", slog.Any("panic", r))
		}
		_ = conn.Close()
	}()

	logger.Debug("connection accepted")

	req, err := ReadFrame(conn, s.MaxFrameSize)
	if err != nil {
		logger.Warn("failed to read frame, closing connection", slog.String("error", err.Error()))
		return
	}

	resp := s.dispatch(logger, req)

	if err := WriteFrame(conn, resp); err != nil {
		logger.Warn("failed to write response frame", slog.String("error", err.Error()))
	}
}

// dispatch invokes the handler with panic recovery, translating a panic
// into the caller-supplied Handler's own unrecoverable-state encoding is
// the executor's job; here we only guarantee the process never dies.
func (s *Server) dispatch(logger *slog.Logger, req []byte) (resp []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked, translating to unrecoverable-state response", slog.Any("panic", r))
			if s.PanicResponse != nil {
				resp = s.PanicResponse(r)
			} else {
				resp = nil
			}
		}
	}()
	return s.Handler(req)
}
