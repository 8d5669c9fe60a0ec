package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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

	"github.com/kalambet/nova/internal/agent"
	"github.com/kalambet/nova/internal/api"
	"github.com/kalambet/nova/internal/assistant"
	"github.com/kalambet/nova/internal/config"
	"github.com/kalambet/nova/internal/google"
	"github.com/kalambet/nova/internal/llm"
	"github.com/kalambet/nova/internal/macro"
	"github.com/kalambet/nova/internal/market"
	"github.com/kalambet/nova/internal/news"
	"github.com/kalambet/nova/internal/outbox"
	"github.com/kalambet/nova/internal/session"
	"github.com/kalambet/nova/internal/storage"
	"github.com/kalambet/nova/internal/weather"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the nova server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running nova server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show nova system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio without the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "nova.pid")
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

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// tablesPath is the configured tables file, or tables.yaml in the data dir.
func tablesPath(cfg config.Config) string {
	if cfg.Agent.TablesPath != "" {
		return cfg.Agent.TablesPath
	}
	return filepath.Join(cfg.Storage.DataDir, "tables.yaml")
}

// loadTables reads the tables file when it exists and falls back to the
// built-in tables otherwise.
func loadTables(path string) (*agent.Tables, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return agent.DefaultTables(), nil
	}
	return agent.LoadTables(path)
}

// googleMode reports how inbox, calendar and mail are served for cfg.
func googleMode(cfg config.Config) assistant.GoogleMode {
	creds := google.Credentials{ClientID: cfg.Google.ClientID, ClientSecret: cfg.Google.ClientSecret}
	switch {
	case cfg.Google.ClientID == "":
		return assistant.GoogleDemo
	case !creds.Configured() || cfg.Google.RefreshToken == "":
		return assistant.GoogleLoggedOut
	default:
		return assistant.GoogleLive
	}
}

// runtime is everything the HTTP and MCP surfaces share.
type runtime struct {
	cfg     config.Config
	store   *storage.Store
	agent   *agent.Agent
	deps    api.Deps
	outbox  *outbox.Worker
	watcher *agent.TableWatcher
}

func (rt *runtime) Close() {
	if err := rt.store.Close(); err != nil {
		slog.Warn("closing storage", "error", err)
	}
}

func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	token, err := config.GetAPIToken(config.NewSecretStore())
	if err != nil {
		return nil, fmt.Errorf("getting API token: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	path := tablesPath(cfg)
	tables, err := loadTables(path)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("loading tables: %w", err)
	}

	sessions := session.NewManager(store)
	core := agent.New(agent.WithTables(tables), agent.WithRecorder(sessions))

	llmClient := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
	opts := []assistant.Option{
		assistant.WithLLM(llmClient, cfg.LLM.SystemPrompt),
		assistant.WithQuotes(market.NewClient(cfg.Market.BaseURL)),
		assistant.WithHeadlines(news.NewClient(cfg.News.APIKey, cfg.News.BaseURL)),
		assistant.WithWeather(weather.NewClient(cfg.Weather.APIKey, cfg.Weather.BaseURL, cfg.Weather.City)),
		assistant.WithMacro(macro.NewClient(cfg.Macro.APIKey, cfg.Macro.BaseURL, nil)),
	}

	var sender outbox.Sender
	var calendar api.EventCreator
	switch googleMode(cfg) {
	case assistant.GoogleLive:
		creds := google.Credentials{ClientID: cfg.Google.ClientID, ClientSecret: cfg.Google.ClientSecret}
		svc := google.New(ctx, creds, cfg.Google.RefreshToken)
		opts = append(opts, assistant.WithGoogle(svc.Mail, svc.Calendar))
		sender = svc.Mail
		calendar = svc.Calendar
		slog.Info("google account linked")
	case assistant.GoogleLoggedOut:
		opts = append(opts, assistant.WithGoogleLoggedOut())
		slog.Info("google client configured but not logged in; run `nova google login`")
	default:
		slog.Debug("google not configured, serving demo inbox and calendar")
	}

	poll, err := time.ParseDuration(cfg.Outbox.PollInterval)
	if err != nil {
		slog.Warn("invalid outbox poll interval, using default", "value", cfg.Outbox.PollInterval, "error", err)
		poll = 0
	}

	rt := &runtime{
		cfg:   cfg,
		store: store,
		agent: core,
		deps: api.Deps{
			Store:     store,
			Sessions:  sessions,
			Agent:     core,
			Assistant: assistant.New(opts...),
			Calendar:  calendar,
			Token:     token,
		},
		outbox: outbox.NewWorker(store, sender, poll),
	}
	if cfg.Agent.WatchTables {
		rt.watcher = agent.NewTableWatcher(core, path, nil)
	}
	return rt, nil
}

// runBackground starts the outbox worker and table watcher on g.
func (rt *runtime) runBackground(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		rt.outbox.Run(ctx)
		return nil
	})
	if rt.watcher != nil {
		g.Go(func() error {
			if err := rt.watcher.Run(ctx); err != nil {
				slog.Warn("tables watcher stopped", "error", err)
			}
			return nil
		})
	}
}

func serveMCP(ctx context.Context, deps api.Deps) {
	stdioSrv := server.NewStdioServer(api.NewMCPServer(deps, version))
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("MCP stdio server error", "error", err)
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "nova version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("nova is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("nova is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	slog.Info("API bearer token available")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(rt.deps),
	}

	g, gctx := errgroup.WithContext(ctx)
	rt.runBackground(gctx, g)

	go serveMCP(gctx, rt.deps)
	slog.Info("MCP server started (stdio transport)")

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "nova listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	g, gctx := errgroup.WithContext(ctx)
	rt.runBackground(gctx, g)
	serveMCP(gctx, rt.deps)
	stop()
	return g.Wait()
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
		printError("nova is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop nova (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to nova (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
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

	printStatus("LLM", "%s (%s)", cfg.LLM.Model, configuredLabel(cfg.LLM.APIKey != ""))
	printStatus("Weather", "%s (%s)", cfg.Weather.City, configuredLabel(cfg.Weather.APIKey != ""))
	printStatus("Macro", "%s", configuredLabel(cfg.Macro.APIKey != ""))
	printStatus("News", "%s", configuredLabel(cfg.News.APIKey != ""))
	printStatus("Google", "%s", googleModeLabel(googleMode(cfg)))
	printStatus("Tables", "%s", tablesPath(cfg))

	if running {
		token, tokenErr := config.GetAPIToken(config.NewSecretStore())
		if tokenErr == nil {
			sessResp, err := apiGet(client, serverURL+"/v1/sessions?limit=100", token)
			if err == nil {
				var sessions []api.SessionView
				if decodeJSON(sessResp, &sessions) == nil {
					printStatus("Sessions", "%s", countLabel(len(sessions), 100))
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func configuredLabel(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func googleModeLabel(m assistant.GoogleMode) string {
	switch m {
	case assistant.GoogleLive:
		return "linked"
	case assistant.GoogleLoggedOut:
		return "not logged in"
	default:
		return "demo data"
	}
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
