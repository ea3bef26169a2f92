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

	"tally/internal/checkpoint"
	"tally/internal/daemon"
	"tally/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
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

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
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
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
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
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Select(req SelectRequest, resp *SelectResponse) error {
	s.log().Debug("file selection requested", logging.String("path", req.Path))
	sel, err := s.daemon.SelectFile(s.ctx, req.Path, daemon.SelectOptions{Fresh: req.Fresh})
	if err != nil {
		return err
	}
	resp.RunID = sel.RunID
	resp.Source = string(sel.Plan.Source)
	resp.Offset = sel.Plan.Offset
	resp.Percent = sel.Plan.Percent
	resp.Reattached = sel.Reattached
	resp.Balances = sel.Plan.Balances
	switch sel.Plan.Skipped.(type) {
	case checkpoint.StaleCheckpoint:
		resp.Skipped = "stale checkpoint"
	case checkpoint.IdentityMismatch:
		resp.Skipped = "checkpoint for a different version of the file"
	}
	s.log().Info("file selected via IPC",
		logging.String(logging.FieldEventType, "file_select"),
		logging.String(logging.FieldRunID, sel.RunID),
		logging.String("source", resp.Source),
		logging.Int64("offset", resp.Offset))
	return nil
}

func (s *service) Pause(_ PauseRequest, resp *PauseResponse) error {
	s.log().Debug("pause requested")
	err := s.daemon.Pause(s.ctx)
	st := s.daemon.Engine().Status()
	resp.BytesProcessed = st.BytesProcessed
	resp.Percent = st.Percent
	return err
}

func (s *service) Resume(_ ResumeRequest, resp *ResumeResponse) error {
	s.log().Debug("resume requested")
	if err := s.daemon.Resume(s.ctx); err != nil {
		return err
	}
	resp.Resumed = true
	return nil
}

func (s *service) Stop(req StopRequest, resp *StopResponse) error {
	s.log().Debug("stop requested", logging.Bool("confirm", req.Confirm))
	if err := s.daemon.StopRun(s.ctx, req.Confirm); err != nil {
		return err
	}
	resp.Stopped = true
	resp.BytesProcessed = s.daemon.Engine().Status().BytesProcessed
	return nil
}

func (s *service) ClearCheckpoint(req ClearCheckpointRequest, resp *ClearCheckpointResponse) error {
	s.log().Debug("checkpoint clear requested", logging.String("key", req.Key))
	if err := s.daemon.ClearCheckpoint(s.ctx, req.Key); err != nil {
		return err
	}
	resp.Cleared = true
	s.log().Info("checkpoint cleared",
		logging.String(logging.FieldEventType, "checkpoint_clear"),
		logging.String("key", req.Key))
	return nil
}

func (s *service) ClearBalances(_ ClearBalancesRequest, resp *ClearBalancesResponse) error {
	s.log().Debug("balances clear requested")
	removed, err := s.daemon.ClearAllBalances(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) Reset(_ ResetRequest, resp *ResetResponse) error {
	if err := s.daemon.Reset(s.ctx); err != nil {
		return err
	}
	resp.Reset = true
	return nil
}

func (s *service) CheckpointList(_ CheckpointListRequest, resp *CheckpointListResponse) error {
	list, err := s.daemon.Checkpoints(s.ctx)
	if err != nil {
		return err
	}
	resp.Checkpoints = list
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	eng := status.Engine
	resp.Running = status.Running
	resp.PID = status.PID
	resp.State = string(eng.State)
	resp.RunID = eng.RunID
	resp.File = eng.Identity.Name
	resp.Path = eng.Path
	if !eng.Identity.IsZero() {
		resp.IdentityKey = eng.Identity.Key()
	}
	resp.BytesProcessed = eng.BytesProcessed
	resp.FileSize = eng.FileSize
	resp.Percent = eng.Percent
	resp.Records = eng.Records
	resp.ChunkSize = eng.ChunkSize
	resp.StartedAt = eng.StartedAt
	resp.PausedAt = eng.PausedAt
	resp.LastError = eng.LastError
	resp.Balances = eng.Balances
	resp.Session = status.Session
	resp.NeedsRecovery = status.NeedsRecovery
	resp.Checkpoints = status.Checkpoints
	resp.DBPath = status.DBPath
	resp.LockPath = status.LockFilePath
	resp.LogPath = status.LogPath
	return nil
}
