package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"log/slog"

	"github.com/mfleurival/movie-tool/internal/daemon"
	"github.com/mfleurival/movie-tool/internal/generation"
	"github.com/mfleurival/movie-tool/internal/logging"
	"github.com/mfleurival/movie-tool/internal/providers"
	"github.com/mfleurival/movie-tool/internal/store"
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
	if err := rpcServer.RegisterName("MovieTool", srv); err != nil {
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"))
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
			logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "ipc")
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status, err := s.daemon.Status(s.ctx)
	if err != nil {
		return err
	}
	resp.Running = status.Running
	resp.ActiveGenerations = status.Summary.ActiveGenerations
	resp.PendingGenerations = status.Summary.PendingGenerations
	resp.ActiveExports = status.Summary.ActiveExports
	resp.CompletedClips = status.Summary.CompletedClips
	resp.FailedClips = status.Summary.FailedClips
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockFilePath
	resp.SocketPath = status.SocketPath
	return nil
}

func (s *service) ProjectCreate(req ProjectCreateRequest, resp *ProjectCreateResponse) error {
	project, err := s.daemon.CreateProject(s.ctx, req.Name, req.Description)
	if err != nil {
		return err
	}
	resp.Project = fromProject(project)
	s.log().Info("project created",
		logging.String(logging.FieldEventType, "project_create"),
		logging.String(logging.FieldProjectID, project.ID))
	return nil
}

func (s *service) ProjectList(_ ProjectListRequest, resp *ProjectListResponse) error {
	projects, err := s.daemon.ListProjects(s.ctx)
	if err != nil {
		return err
	}
	resp.Projects = make([]ProjectInfo, 0, len(projects))
	for _, p := range projects {
		resp.Projects = append(resp.Projects, fromProject(p))
	}
	return nil
}

func (s *service) CharacterAdd(req CharacterAddRequest, resp *CharacterAddResponse) error {
	character, err := s.daemon.AddCharacter(s.ctx, req.ProjectID, req.Name, req.Description, req.ImagePath, req.Provider)
	if err != nil {
		return err
	}
	resp.Character = fromCharacter(character)
	return nil
}

func (s *service) CharacterList(req CharacterListRequest, resp *CharacterListResponse) error {
	characters, err := s.daemon.ListCharacters(s.ctx, req.ProjectID)
	if err != nil {
		return err
	}
	resp.Characters = make([]CharacterInfo, 0, len(characters))
	for _, c := range characters {
		resp.Characters = append(resp.Characters, fromCharacter(c))
	}
	return nil
}

func (s *service) ClipAdd(req ClipAddRequest, resp *ClipAddResponse) error {
	clip, err := s.daemon.AddClip(s.ctx, req.ProjectID, req.Name, req.Prompt, req.Sequence)
	if err != nil {
		return err
	}
	resp.Clip = fromClip(clip)
	return nil
}

func (s *service) ClipList(req ClipListRequest, resp *ClipListResponse) error {
	clips, err := s.daemon.ListClips(s.ctx, req.ProjectID)
	if err != nil {
		return err
	}
	resp.Clips = make([]ClipInfo, 0, len(clips))
	for _, c := range clips {
		resp.Clips = append(resp.Clips, fromClip(c))
	}
	return nil
}

func (s *service) Generate(req GenerateRequest, resp *GenerateResponse) error {
	model, ok := providers.ParseModelType(req.Model)
	if !ok {
		return fmt.Errorf("unknown model type %q", req.Model)
	}
	job, err := s.daemon.Generate(s.ctx, generation.Params{
		ClipID:          req.ClipID,
		Provider:        strings.ToLower(strings.TrimSpace(req.Provider)),
		Model:           model,
		Prompt:          req.Prompt,
		Duration:        req.Duration,
		Resolution:      req.Resolution,
		ReferenceImage:  req.ReferenceImage,
		CameraMovements: req.CameraMovements,
	})
	if err != nil {
		return err
	}
	resp.Job = fromJob(job)
	s.log().Info("generation started via IPC",
		logging.String(logging.FieldEventType, "generation_start"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldClipID, job.ClipID),
		logging.String(logging.FieldProvider, job.Provider))
	return nil
}

func (s *service) GenerateCancel(req GenerateCancelRequest, resp *GenerateCancelResponse) error {
	cancelled, err := s.daemon.CancelGeneration(s.ctx, req.JobID)
	if err != nil {
		return err
	}
	resp.Cancelled = cancelled
	return nil
}

func (s *service) JobList(req JobListRequest, resp *JobListResponse) error {
	statuses := make([]store.JobStatus, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		parsed, ok := store.ParseJobStatus(raw)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	jobs, err := s.daemon.ListGenerationJobs(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Jobs = make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, fromJob(j))
	}
	return nil
}

func (s *service) ExportStart(req ExportStartRequest, resp *ExportStartResponse) error {
	job, err := s.daemon.StartExport(s.ctx, req.ProjectID)
	if err != nil {
		return err
	}
	resp.Job = fromExport(job)
	s.log().Info("export started via IPC",
		logging.String(logging.FieldEventType, "export_start"),
		logging.String(logging.FieldProjectID, job.ProjectID),
		logging.String("export_id", job.ID))
	return nil
}

func (s *service) ExportCancel(req ExportCancelRequest, resp *ExportCancelResponse) error {
	cancelled, err := s.daemon.CancelExport(s.ctx, req.JobID)
	if err != nil {
		return err
	}
	resp.Cancelled = cancelled
	return nil
}

func (s *service) ExportDescribe(req ExportDescribeRequest, resp *ExportDescribeResponse) error {
	job, err := s.daemon.GetExportJob(s.ctx, req.JobID)
	if err != nil {
		return err
	}
	resp.Job = fromExport(job)
	return nil
}

func (s *service) ExportList(req ExportListRequest, resp *ExportListResponse) error {
	jobs, err := s.daemon.ListExports(s.ctx, req.ProjectID)
	if err != nil {
		return err
	}
	resp.Jobs = make([]ExportInfo, 0, len(jobs))
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, fromExport(j))
	}
	return nil
}
