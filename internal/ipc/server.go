// Package ipc exposes daemon control via JSON-RPC over a Unix domain socket.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"cardbox/internal/daemon"
	"cardbox/internal/logging"
	"cardbox/internal/logs"
	"cardbox/internal/supervisor"
)

// serviceName is the RPC receiver name clients call methods on.
const serviceName = "Cardbox"

// Server accepts control connections on a Unix socket and dispatches them to
// the daemon.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path. shutdown is
// invoked when a client asks the daemon process to exit; it must not block.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, shutdown func()) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{
		daemon:   d,
		logger:   logging.WithComponent(logger, "ipc"),
		ctx:      serverCtx,
		shutdown: shutdown,
	}
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logging.WithComponent(logger, "ipc"),
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve accepts RPC connections until the context is cancelled or Close is
// called.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the socket file manually before the next start"),
		)
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status()
	resp.Running = status.Running
	resp.PID = status.PID
	resp.StartedAt = status.StartedAt
	resp.TargetDir = status.TargetDir
	resp.LockPath = status.LockPath
	resp.HistoryDBPath = status.HistoryDBPath
	resp.Snapshot = status.Snapshot
	return nil
}

func (s *service) IngestStart(_ IngestStartRequest, resp *IngestStartResponse) error {
	source, err := s.daemon.StartIngest()
	if err != nil {
		resp.Started = false
		resp.Message = err.Error()
		// Benign "nothing to do" answers travel in the message, not as RPC
		// errors, so the CLI can render them plainly.
		if errors.Is(err, supervisor.ErrIngestActive) ||
			errors.Is(err, supervisor.ErrNoSource) ||
			errors.Is(err, supervisor.ErrTargetUnavailable) {
			return nil
		}
		return err
	}
	resp.Started = true
	resp.Source = source
	resp.Message = fmt.Sprintf("ingest started from %s", source)
	s.logger.Info("ingest started via IPC",
		logging.String(logging.FieldSource, source),
		logging.String(logging.FieldEventType, "ingest_start"),
	)
	return nil
}

func (s *service) IngestStop(_ IngestStopRequest, resp *IngestStopResponse) error {
	if err := s.daemon.StopIngest(); err != nil {
		resp.Stopped = false
		resp.Message = err.Error()
		if errors.Is(err, supervisor.ErrNoIngest) {
			return nil
		}
		return err
	}
	resp.Stopped = true
	resp.Message = "cancellation requested; current file will be finished"
	s.logger.Info("ingest stop requested via IPC",
		logging.String(logging.FieldEventType, "ingest_stop"),
	)
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.logger.Info("daemon shutdown requested via IPC",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	resp.Stopping = true
	if s.shutdown != nil {
		go s.shutdown()
	}
	return nil
}

func (s *service) HistoryList(req HistoryListRequest, resp *HistoryListResponse) error {
	entries, err := s.daemon.History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	totals, err := s.daemon.HistoryTotals(s.ctx)
	if err != nil {
		return err
	}
	resp.Entries = make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		resp.Entries = append(resp.Entries, HistoryEntry{
			ID:           e.ID,
			SessionID:    e.SessionID,
			Source:       e.Source,
			Outcome:      e.Outcome,
			TotalFiles:   e.TotalFiles,
			CopiedFiles:  e.CopiedFiles,
			SkippedFiles: e.SkippedFiles,
			ErrorFiles:   e.ErrorFiles,
			Message:      e.Message,
			StartedAt:    e.StartedAt,
			FinishedAt:   e.FinishedAt,
		})
	}
	resp.Sessions = totals.Sessions
	resp.CopiedFiles = totals.CopiedFiles
	resp.ErrorFiles = totals.ErrorFiles
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
