// ABOUTME: Entry point for codex-http-server
// ABOUTME: Serves agent turns over HTTP/SSE and inspects the turn ledger

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/2389/codex-http-server/internal/config"
	"github.com/2389/codex-http-server/internal/engine"
	"github.com/2389/codex-http-server/internal/gateway"
	"github.com/2389/codex-http-server/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
               _                 _     _   _
  ___ ___   __| | _____  __     | |__ | |_| |_ _ __
 / __/ _ \ / _' |/ _ \ \/ /_____| '_ \| __| __| '_ \
| (_| (_) | (_| |  __/>  <______| | | | |_| |_| |_) |
 \___\___/ \__,_|\___/_/\_\     |_| |_|\__|\__| .__/
                                              |_|
`

func usage() {
	fmt.Println("Usage: codex-http-server <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the HTTP server")
	fmt.Println("  health    Check server health")
	fmt.Println("  turns     List recorded turns and token usage")
	fmt.Println("  version   Print the version")
	fmt.Println()
	fmt.Printf("Config is read from $%s or ~/.config/codex-http/server.yaml.\n", config.ConfigPathEnv)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// .env is optional; provider keys usually come from the real environment.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx, os.Args[2:])
	case "turns":
		err = runTurns(ctx, os.Args[2:])
	case "version", "--version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the server config from path, falling back to defaults when
// the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, args []string) error {
	var configPath, addr string

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", config.Path(), "path to server.yaml")
	flags.StringVar(&addr, "addr", "", "listen address (overrides server.http_addr)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.HTTPAddr = addr
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	green.Print("    ▶ ")
	if cfg.Database.Path != "" {
		fmt.Printf("Ledger:    %s\n", cfg.Database.Path)
	} else {
		fmt.Print("Ledger:    ")
		yellow.Println("disabled")
	}

	fmt.Println()

	logger.Info("starting codex-http-server",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	gw, err := gateway.New(cfg, engine.New(logger), logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")

	stdoutMu.Lock()
	defer stdoutMu.Unlock()
	_, err := io.WriteString(os.Stdout, buf.String())
	return err
}

// stdoutMu serializes writes from every handler derived from the root one.
var stdoutMu sync.Mutex

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// serverURL returns the base URL the configured server listens on.
func serverURL(cfg *config.Config) string {
	if cfg.Tailscale.Enabled {
		return "http://" + cfg.Tailscale.Hostname
	}
	return "http://" + cfg.Server.HTTPAddr
}

func runHealth(ctx context.Context, args []string) error {
	var configPath, addr string

	flags := pflag.NewFlagSet("health", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", config.Path(), "path to server.yaml")
	flags.StringVar(&addr, "addr", "", "server address (overrides the config)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	base := serverURL(cfg)
	if addr != "" {
		base = "http://" + addr
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	var health gateway.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}

	fmt.Println(health.Status)
	return nil
}

func runTurns(ctx context.Context, args []string) error {
	var configPath string
	var limit int
	var since time.Duration

	flags := pflag.NewFlagSet("turns", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", config.Path(), "path to server.yaml")
	flags.IntVarP(&limit, "limit", "n", 20, "number of turns to list")
	flags.DurationVar(&since, "since", 0, "only count usage from this long ago (e.g. 24h)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.Path == "" {
		return errors.New("turn ledger is disabled: set database.path in " + configPath)
	}

	dbPath, err := config.ExpandHome(cfg.Database.Path)
	if err != nil {
		return err
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	turns, err := s.ListTurns(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing turns: %w", err)
	}

	var sinceTime *time.Time
	if since > 0 {
		t := time.Now().Add(-since)
		sinceTime = &t
	}
	stats, err := s.GetUsageStats(ctx, sinceTime)
	if err != nil {
		return fmt.Errorf("reading usage stats: %w", err)
	}

	cyan := color.New(color.FgCyan)
	cyan.Println("Turns")
	cyan.Println("-----")

	if len(turns) == 0 {
		fmt.Println("no turns recorded")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tSTATUS\tPROVIDER\tMODEL\tFRAMES\tSESSION")
		for _, t := range turns {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				t.StartedAt.Local().Format("Jan 02 15:04:05"),
				statusString(t.Status),
				t.Provider,
				t.Model,
				t.Frames,
				t.SessionID,
			)
		}
		w.Flush()
	}

	fmt.Println()
	cyan.Println("Usage")
	cyan.Println("-----")
	fmt.Printf("Turns:         %d (%d completed)\n", stats.Turns, stats.CompletedTurns)
	fmt.Printf("Input tokens:  %d\n", stats.TotalInputTokens)
	fmt.Printf("Output tokens: %d\n", stats.TotalOutputTokens)
	fmt.Printf("Total tokens:  %d\n", stats.TotalTokens)
	return nil
}

func statusString(status store.TurnStatus) string {
	switch status {
	case store.TurnCompleted:
		return color.GreenString(string(status))
	case store.TurnFailed:
		return color.RedString(string(status))
	case store.TurnDisconnected:
		return color.YellowString(string(status))
	default:
		return string(status)
	}
}
