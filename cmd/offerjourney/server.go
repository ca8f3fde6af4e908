package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/offerjourney/internal/api"
	"github.com/kalambet/offerjourney/internal/comparison"
	"github.com/kalambet/offerjourney/internal/config"
	"github.com/kalambet/offerjourney/internal/dataset"
	"github.com/kalambet/offerjourney/internal/ingest"
	"github.com/kalambet/offerjourney/internal/source"
	"github.com/kalambet/offerjourney/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Start the dashboard server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpStdio, _ := cmd.Flags().GetBool("mcp-stdio")
		return runServer(mcpStdio)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp-stdio", false, "also serve MCP over stdin/stdout")
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and data status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "offerjourney.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "offerjourney version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	if cfg.Server.Token == "" {
		printWarning("OFFERJOURNEY_SERVER_TOKEN is not set; import endpoints will reject every request")
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("offerjourney is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("offerjourney is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()
	if v, err := store.SchemaVersion(); err == nil {
		slog.Info("storage ready", "dir", cfg.Storage.DataDir, "schema_version", v)
	}

	cache := dataset.NewCache(store, cfg.CacheTTL())
	svc := comparison.NewService(cache, nil)
	worker := ingest.NewWorker(store, source.Open, source.NewImporter(store), cache, cfg.PollInterval()).
		WithDefaults(cfg.SourceDefaults())

	if err := bootstrapImport(ctx, store, cfg); err != nil {
		slog.Warn("initial import not queued", "error", err)
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Service:         svc,
		DefaultCustomer: int64(cfg.Dashboard.DefaultCustomer),
	}, version)

	handler := api.NewRouter(api.Deps{
		Service:         svc,
		Imports:         store,
		Token:           cfg.Server.Token,
		DefaultCustomer: int64(cfg.Dashboard.DefaultCustomer),
		DefaultKind:     cfg.Source.Kind,
		SourceDefaults:  cfg.SourceDefaults(),
		MCP:             server.NewStreamableHTTPServer(mcpSrv, server.WithEndpointPath("/mcp")),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "offerjourney listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	if mcpStdio {
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// bootstrapStore is what bootstrapImport needs from the store.
type bootstrapStore interface {
	ingest.Queue
	CountInteractions(ctx context.Context) (int64, error)
}

// bootstrapImport queues an import of the configured source when the
// interaction table is empty, so a fresh install shows real data once the
// worker has run.
func bootstrapImport(ctx context.Context, store bootstrapStore, cfg config.Config) error {
	n, err := store.CountInteractions(ctx)
	if err != nil {
		return fmt.Errorf("counting interactions: %w", err)
	}
	if n > 0 {
		return nil
	}

	imp, err := ingest.Enqueue(ctx, store, ingest.Request{Kind: cfg.Source.Kind}, cfg.SourceDefaults())
	if err != nil {
		return err
	}
	slog.Info("interaction table empty, import queued", "import_id", imp.ID, "location", imp.Location)
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("offerjourney is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop offerjourney (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to offerjourney (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      cfg.Server.Token,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}

	running := false
	if resp, err := client.get(ctx, "/health"); err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		if resp, err := client.get(ctx, "/customers"); err == nil {
			var list struct {
				Customers []int64 `json:"customers"`
			}
			if decodeJSON(resp, &list) == nil {
				printStatus("Customers", "%d", len(list.Customers))
			}
		}
		if cfg.Server.Token != "" {
			if resp, err := client.get(ctx, "/imports?limit=1"); err == nil {
				var imports []storage.Import
				if decodeJSON(resp, &imports) == nil && len(imports) > 0 {
					printStatus("Last import", "%s (%s, %d rows)", imports[0].Status, imports[0].Location, imports[0].Rows)
				}
			}
		}
	}

	printStatus("Source", "%s %s", cfg.Source.Kind, cfg.SourceSpec("").Location())
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
