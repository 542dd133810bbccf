// ABOUTME: Entry point for the blogsys dashboard server
// ABOUTME: Provides serve, init, bootstrap and health subcommands

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/blogsys/internal/account"
	"github.com/2389/blogsys/internal/config"
	"github.com/2389/blogsys/internal/server"
)

// Version is set at build time.
var version = "dev"

const banner = `
  _     _
 | |__ | | ___   __ _ ___ _   _ ___
 | '_ \| |/ _ \ / _' / __| | | / __|
 | |_) | | (_) | (_| \__ \ |_| \__ \
 |_.__/|_|\___/ \__, |___/\__, |___/
                |___/     |___/
`

// getConfigPath returns the path to the config file.
// Priority: BLOGSYS_CONFIG env var > XDG_CONFIG_HOME/blogsys/config.yaml > ~/.config/blogsys/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("BLOGSYS_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "blogsys", "config.yaml")
}

// getDataPath returns the path to the blogsys data directory.
// Priority: XDG_DATA_HOME/blogsys > ~/.local/share/blogsys
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "blogsys")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: blogsys <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                                 Start the dashboard server")
		fmt.Println("  init                                  Create a new config file interactively")
		fmt.Println("  bootstrap --email EMAIL --password PW Create the first admin account")
		fmt.Println("  health                                Check server readiness")
		os.Exit(1)
	}

	// A .env file next to the binary is optional
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	// Packages derive their component loggers from the default
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Store:     %s\n", cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Dashboard: %s\n", server.DetermineBaseURL(cfg))

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Auth.InitAdminSecret == "" {
		yellow.Printf("    ! %s is not set; /init is disabled\n", config.InitSecretEnv)
	}

	fmt.Println()

	logger.Info("starting blogsys",
		"config", configPath,
		"driver", cfg.Database.Driver,
		"http_addr", cfg.Server.HTTPAddr,
	)

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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

	fmt.Println("healthy")
	return nil
}

// bootstrapArgs holds the parsed bootstrap flags
type bootstrapArgs struct {
	email    string
	password string
}

// parseBootstrapArgs supports both "--flag value" and "--flag=value" formats.
// The password falls back to BLOGSYS_ADMIN_PASSWORD.
func parseBootstrapArgs(args []string) (bootstrapArgs, error) {
	var out bootstrapArgs
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") {
			return out, fmt.Errorf("unexpected argument: %s", arg)
		}

		var target *string
		switch name {
		case "email", "e":
			target = &out.email
		case "password", "p":
			target = &out.password
		default:
			return out, fmt.Errorf("unknown flag: %s", arg)
		}

		if !hasValue {
			if i+1 >= len(args) {
				return out, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		*target = value
	}

	if out.password == "" {
		out.password = os.Getenv("BLOGSYS_ADMIN_PASSWORD")
	}
	if strings.TrimSpace(out.email) == "" {
		return out, fmt.Errorf("--email flag is required")
	}
	if out.password == "" {
		return out, fmt.Errorf("--password flag (or BLOGSYS_ADMIN_PASSWORD) is required")
	}
	return out, nil
}

// runBootstrap creates the first admin account from the command line. It goes
// through the same init action as the /init page, so the init secret must be configured.
func runBootstrap(ctx context.Context, args []string) error {
	parsed, err := parseBootstrapArgs(args)
	if err != nil {
		return err
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	green.Printf("  ✓ Store: %s\n", cfg.Database.Driver)

	accounts := account.NewService(store, account.NewBcryptHasher(), cfg.Auth.InitAdminSecret, nil)
	out := accounts.Init(ctx, account.NewForm(map[string]string{
		"key":      cfg.Auth.InitAdminSecret,
		"email":    parsed.email,
		"password": parsed.password,
	}))
	if out.Failed() {
		return fmt.Errorf("creating admin: %w", out.Err)
	}

	green.Printf("  ✓ Created admin: %s\n", account.NormalizeEmail(parsed.email))

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Sign in at")
	fmt.Printf("    %s/login\n", server.DetermineBaseURL(cfg))
	fmt.Println()
	yellow.Println("  Ready to go:")
	fmt.Println("    blogsys serve    # start the dashboard")
	fmt.Println()

	return nil
}

// generateSessionSecret returns a random base64 secret long enough for auth.session_secret.
func generateSessionSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating session secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("blogsys configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDbPath := filepath.Join(getDataPath(), "blogsys.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Database Configuration ---")
	driver := prompt(reader, "Driver (sqlite/mongo/firestore/memory)", "sqlite")
	var dbPath, dbURI, dbName, projectID string
	switch driver {
	case "mongo":
		dbURI = prompt(reader, "MongoDB URI", "mongodb://localhost:27017")
		dbName = prompt(reader, "Database name", "blogsys")
	case "firestore":
		projectID = prompt(reader, "Google Cloud project ID", "")
	case "memory":
	default:
		dbPath = prompt(reader, "SQLite database path", defaultDbPath)
	}

	fmt.Println("\n--- Tailscale Configuration ---")
	tailscaleEnabled := isYes(prompt(reader, "Enable Tailscale?", "no"))

	var tsHostname, tsAuthKey string
	var tsEphemeral, tsHTTPS, tsFunnel bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "blogsys")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		tsEphemeral = isYes(prompt(reader, "Ephemeral node?", "no"))
		tsHTTPS = isYes(prompt(reader, "Serve HTTPS with Tailscale certs?", "yes"))
		tsFunnel = isYes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	sessionSecret, err := generateSessionSecret()
	if err != nil {
		return err
	}

	var cfg strings.Builder
	cfg.WriteString("# blogsys configuration\n")
	cfg.WriteString("# Generated by blogsys init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", httpAddr))
	cfg.WriteString("  shutdown_timeout: \"5s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  driver: %q\n", driver))
	if dbPath != "" {
		cfg.WriteString(fmt.Sprintf("  path: %q\n", dbPath))
	}
	if dbURI != "" {
		cfg.WriteString(fmt.Sprintf("  uri: %q\n", dbURI))
		cfg.WriteString(fmt.Sprintf("  name: %q\n", dbName))
	}
	if projectID != "" {
		cfg.WriteString(fmt.Sprintf("  project_id: %q\n", projectID))
	}
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: %q\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
		cfg.WriteString(fmt.Sprintf("  https: %t\n", tsHTTPS))
		cfg.WriteString(fmt.Sprintf("  funnel: %t\n", tsFunnel))
	}
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  session_secret: %q\n", sessionSecret))
	cfg.WriteString("  init_admin_secret: \"${" + config.InitSecretEnv + "}\"\n")
	cfg.WriteString("  session_ttl: \"168h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The session secret makes this file sensitive
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nNext steps:")
	fmt.Printf("  export %s=<a secret of your choice>\n", config.InitSecretEnv)
	fmt.Println("  blogsys bootstrap --email you@example.com --password ...")
	fmt.Println("  blogsys serve")

	return nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
