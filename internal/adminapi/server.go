package adminapi

import (
	"log/slog"

	"github.com/ChuLiYu/beaver-queue/internal/dispatch"
	"github.com/ChuLiYu/beaver-queue/internal/transport"
	"github.com/ChuLiYu/beaver-queue/pkg/jobs"
)

// Backend is the subset of *master.Master the admin server needs. Declared
// locally, mirroring internal/session's metricsSink pattern, so this
// package does not import internal/master; internal/cli starts the admin
// listener alongside the worker one and passes the *master.Master in.
type Backend interface {
	Submit(it dispatch.JobIterator) (*dispatch.Handle, error)
	Stats() dispatch.Stats
	WorkersConnected() int
}

// Server accepts one-shot admin connections and answers submit/status
// requests against a Backend.
type Server struct {
	backend  Backend
	listener *transport.Listener
	logger   *slog.Logger
}

// Serve binds host:port, starts the accept loop in its own goroutine, and
// returns at once. The loop runs until the listener is closed.
func Serve(backend Backend, host string, port int, logger *slog.Logger) (*Server, error) {
	ln, err := transport.Listen(host, port)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{backend: backend, listener: ln, logger: logger.With("component", "adminapi")}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the bound admin listener address.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Close stops accepting new admin connections.
func (s *Server) Close() error { return s.listener.Close() }

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn *transport.Conn) {
	defer conn.Close()

	var req Request
	if err := conn.ReadLine(&req); err != nil {
		s.logger.Warn("admin request decode failed", "error", err)
		return
	}

	resp := s.dispatch(req)
	if err := conn.WriteLine(resp); err != nil {
		s.logger.Warn("admin response write failed", "error", err)
	}
}

func (s *Server) dispatch(req Request) Response {
	switch req.Op {
	case OpSubmit:
		return s.handleSubmit(req)
	case OpStatus:
		return s.handleStatus()
	default:
		return Response{OK: false, Error: "unknown op: " + req.Op}
	}
}

func (s *Server) handleSubmit(req Request) Response {
	payloads, err := jobs.FromJSONArray(req.Jobs)
	if err != nil {
		return Response{OK: false, Error: "invalid jobs array: " + err.Error()}
	}
	if _, err := s.backend.Submit(jobs.ToJobIterator(payloads)); err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true, Queued: len(payloads)}
}

func (s *Server) handleStatus() Response {
	st := s.backend.Stats()
	return Response{
		OK: true,
		Stats: &Stats{
			ActiveJobSets:    st.ActiveJobSets,
			PendingJobs:      st.PendingJobs,
			WorkersConnected: s.backend.WorkersConnected(),
		},
	}
}
