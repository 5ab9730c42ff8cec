package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfleurival/movie-tool/internal/config"
	"github.com/mfleurival/movie-tool/internal/daemon"
	"github.com/mfleurival/movie-tool/internal/export"
	"github.com/mfleurival/movie-tool/internal/generation"
	"github.com/mfleurival/movie-tool/internal/ipc"
	"github.com/mfleurival/movie-tool/internal/logging"
	"github.com/mfleurival/movie-tool/internal/media"
	"github.com/mfleurival/movie-tool/internal/providers"
	"github.com/mfleurival/movie-tool/internal/providers/minimax"
	"github.com/mfleurival/movie-tool/internal/providers/segmind"
	"github.com/mfleurival/movie-tool/internal/store"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the movietool daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, "movietool.log")
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer st.Close()

	clients, err := buildProviderClients(cfg)
	if err != nil {
		return fmt.Errorf("configure providers: %w", err)
	}
	if len(clients) == 0 {
		fmt.Fprintln(os.Stderr, "warn: no generation providers enabled; generation requests will fail")
	}

	transcoder := media.NewTranscoder(cfg, logger)
	orchestrator := generation.New(cfg, st, clients, transcoder, logger)
	pipeline := export.New(cfg, st, transcoder, logger)

	d, err := daemon.New(cfg, st, logger, orchestrator, pipeline)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("movietool daemon shutting down")
	return nil
}

func buildProviderClients(cfg *config.Config) ([]providers.Client, error) {
	var clients []providers.Client

	if cfg.MiniMax.Enabled && cfg.MiniMax.APIKey != "" {
		client, err := minimax.New(cfg.MiniMax.APIKey, cfg.MiniMax.BaseURL,
			minimax.WithHTTPClient(httpClientFor(cfg.MiniMax)))
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	if cfg.Segmind.Enabled && cfg.Segmind.APIKey != "" {
		client, err := segmind.New(cfg.Segmind.APIKey, cfg.Segmind.BaseURL,
			segmind.WithHTTPClient(httpClientFor(cfg.Segmind)))
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func httpClientFor(p config.Provider) *http.Client {
	timeout := time.Duration(p.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &http.Client{Timeout: timeout}
}
