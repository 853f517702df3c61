package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/issueboard/internal/api"
	"github.com/joescharf/issueboard/internal/daemon"
	webui "github.com/joescharf/issueboard/internal/ui"
)

// stopTimeout is how long serve stop waits after SIGTERM before killing.
const stopTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST and event-stream server in the foreground",
	Long: `Run the board HTTP server in the foreground.
By default it listens on port 8080. Use --port to change it.
Use 'board serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun()
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

func init() {
	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStatusCmd)
	serveCmd.AddCommand(serveStopCmd)
	rootCmd.AddCommand(serveCmd)

	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "board-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "board-serve.log")
}

func serveRun() error {
	pf := pidFile()
	if err := pf.Acquire(); err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()
	defer closeStore()

	b, err := getBoard()
	if err != nil {
		return err
	}
	id, err := getIdentity()
	if err != nil {
		return err
	}
	llmClient := newLLMClient()
	if llmClient == nil {
		ui.VerboseLog("No anthropic.api_key configured; description drafts disabled")
	}

	page, err := webui.Handler()
	if err != nil {
		return fmt.Errorf("failed to initialize UI handler: %w", err)
	}
	apiHandler := api.NewServer(b, id, llmClient).Router()
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/healthz", apiHandler)
	mux.Handle("/", page)

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// Open event streams end when shutdown begins.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("serving board", "addr", addr, "pid", os.Getpid())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	ui.Info("Serving board API at http://localhost%s", addr)
	return g.Wait()
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return &daemon.AlreadyRunningError{PID: pid}
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}
	args := []string{"serve", "--port", strconv.Itoa(viper.GetInt("port"))}
	if cfg := viper.ConfigFileUsed(); cfg != "" {
		args = append(args, "--config", cfg)
	}

	if dryRun {
		ui.DryRunMsg("Would start %s %v", exe, args)
		return nil
	}

	logPath := serveLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	_ = child.Process.Release()

	ui.Success("Server started (pid %d), port %d", child.Process.Pid, viper.GetInt("port"))
	ui.Info("Logs: %s", logPath)
	return nil
}

func serveStatusRun() error {
	pid, running := pidFile().IsRunning()
	if !running {
		ui.Info("Server not running")
		return nil
	}
	ui.Success("Server running (pid %d)", pid)
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		return daemon.ErrNotRunning
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", pid)
		return nil
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return err
	}
	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if _, running := pf.IsRunning(); !running {
			ui.Success("Server stopped (pid %d)", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	ui.Warning("Server did not exit after %s; killing", stopTimeout)
	if err := pf.Signal(sigKILL()); err != nil && !errors.Is(err, daemon.ErrNotRunning) {
		return err
	}
	_ = pf.Remove()
	ui.Success("Server killed (pid %d)", pid)
	return nil
}
