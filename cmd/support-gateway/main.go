// ABOUTME: Entry point for the support-gateway live chat server
// ABOUTME: Subcommands to serve, write a starter config, add staff accounts and check health

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/support-gateway/internal/auth"
	"github.com/2389/support-gateway/internal/config"
	"github.com/2389/support-gateway/internal/gateway"
	"github.com/2389/support-gateway/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                     _
  ___ _   _ _ __  _ __   ___  _ __| |_
 / __| | | | '_ \| '_ \ / _ \| '__| __|
 \__ \ |_| | |_) | |_) | (_) | |  | |_
 |___/\__,_| .__/| .__/ \___/|_|   \__|
           |_|   |_|        gateway
`

func usage() {
	fmt.Println("Usage: support-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                                  Start the gateway server")
	fmt.Println("  init                                   Write a starter config with a fresh JWT secret")
	fmt.Println("  admin add --username U [--name NAME]   Create a staff account")
	fmt.Println("      [--password P]                     (password read from stdin when omitted)")
	fmt.Println("  health                                 Check gateway health")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "admin":
		err = runAdmin(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Routing:   %s\n", cfg.Routing.Policy)
	if cfg.Events.AMQPURL != "" {
		green.Print("    ▶ ")
		fmt.Printf("Events:    ")
		cyan.Println(cfg.Events.Exchange)
	}
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! auth.jwt_secret is empty: admin sockets are open to anyone")
	}
	fmt.Println()

	logger.Info("starting support-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"routing_policy", cfg.Routing.Policy,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = &colorHandler{level: level, mu: &sync.Mutex{}}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// colorHandler provides colorized log output with serialized writes.
type colorHandler struct {
	mu     *sync.Mutex // shared by every handler derived via WithAttrs
	level  slog.Level
	attrs  []slog.Attr
	prefix string // dotted group path for record attrs
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

	for _, a := range h.attrs {
		writeAttr(&buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, h.prefix, a)
		return true
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(os.Stdout, buf.String())
	return err
}

func writeAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
	buf.WriteString(a.Value.String())
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		newAttrs = append(newAttrs, a)
	}
	return &colorHandler{mu: h.mu, level: h.level, attrs: newAttrs, prefix: h.prefix}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &colorHandler{mu: h.mu, level: h.level, attrs: h.attrs, prefix: h.prefix + name + "."}
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	for _, path := range []string{"/health", "/ready"} {
		url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: status %d", path, resp.StatusCode)
		}
	}

	fmt.Println("healthy")
	return nil
}

// runInit writes the starter config with a freshly generated JWT secret.
func runInit() error {
	configPath := config.DefaultPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	secret := base64.StdEncoding.EncodeToString(secretBytes)
	content := strings.Replace(config.Starter, "${SUPPORT_JWT_SECRET}", secret, 1)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println()
	yellow.Println("  Next:")
	fmt.Println("    support-gateway admin add --username you   # create a staff login")
	fmt.Println("    support-gateway serve                      # start the gateway")
	fmt.Println()
	return nil
}

func runAdmin(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "add" {
		return fmt.Errorf("usage: support-gateway admin add --username U [--name NAME] [--password P]")
	}

	// Supports both "--flag value" and "--flag=value"
	var username, displayName, password string
	values := map[string]*string{
		"--username": &username, "-u": &username,
		"--name": &displayName, "-n": &displayName,
		"--password": &password, "-p": &password,
	}

	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		name, value, hasValue := strings.Cut(arg, "=")
		target, known := values[name]
		switch {
		case known && hasValue:
			*target = value
		case known:
			if i+1 >= len(rest) {
				return fmt.Errorf("%s requires a value", arg)
			}
			*target = rest[i+1]
			i++
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	if username == "" {
		return fmt.Errorf("--username flag is required")
	}
	if len(displayName) > 100 {
		return fmt.Errorf("display name exceeds maximum length of 100 characters")
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if password == "" {
		password, err = readPassword(bufio.NewReader(os.Stdin))
		if err != nil {
			return err
		}
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	account, err := auth.NewAccounts(s, nil).CreateAccount(ctx, username, password, displayName)
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created admin #%d: %s (%s)\n", account.Number, account.Username, account.DisplayName)
	return nil
}

// readPassword reads one line, prompting only when stdin is a terminal.
func readPassword(r *bufio.Reader) (string, error) {
	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		fmt.Print("Password: ")
	}
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	return password, nil
}
