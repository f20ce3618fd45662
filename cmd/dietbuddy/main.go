// DietBuddy - WhatsApp diet coach on a stateless model loop
// License: MIT
//
// Copyright (c) 2026 DietBuddy contributors

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/dietbuddy/dietbuddy/pkg/agent"
	"github.com/dietbuddy/dietbuddy/pkg/channels"
	"github.com/dietbuddy/dietbuddy/pkg/checkin"
	"github.com/dietbuddy/dietbuddy/pkg/config"
	"github.com/dietbuddy/dietbuddy/pkg/dedup"
	"github.com/dietbuddy/dietbuddy/pkg/logger"
	"github.com/dietbuddy/dietbuddy/pkg/providers"
	"github.com/dietbuddy/dietbuddy/pkg/store"
	"github.com/dietbuddy/dietbuddy/pkg/webhook"
	"github.com/dietbuddy/dietbuddy/pkg/whatsapp"
	"github.com/google/uuid"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "dietbuddy"

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// formatBuildInfo returns build time and go version info
func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion() {
	fmt.Printf("%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Printf("  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Printf("  Go: %s\n", goVer)
	}
}

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "onboard":
		onboard()
	case "chat":
		chatCmd()
	case "serve":
		serveCmd()
	case "status":
		statusCmd()
	case "docs":
		// Maintenance commands live on the cobra tree.
		if err := executeCLI(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	case "version", "--version", "-v":
		printVersion()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Printf("%s - WhatsApp Diet Coach v%s\n\n", appName, version)
	fmt.Println("Usage: dietbuddy <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  onboard     Initialize dietbuddy configuration")
	fmt.Println("  chat        Chat with the coach locally (CLI mode)")
	fmt.Println("  serve       Start the webhook server, channels, and check-ins")
	fmt.Println("  status      Show dietbuddy status")
	fmt.Println("  version     Show version information")
}

func onboard() {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
		fmt.Print("Overwrite? (y/n): ")
		reader := bufio.NewReader(os.Stdin)
		response, readErr := reader.ReadString('\n')
		if readErr != nil {
			fmt.Printf("Error reading input: %v\n", readErr)
			fmt.Println("Aborted.")
			return
		}
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s is ready!\n", appName)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add your OpenRouter API key to", configPath)
	fmt.Println("     Get one at: https://openrouter.ai/keys")
	fmt.Println("  2. Add your WhatsApp Cloud API access_token and phone_number_id,")
	fmt.Println("     and pick a verify_token for the webhook handshake")
	fmt.Println("  3. Point your Meta app webhook at https://<your-host>/webhook")
	fmt.Println("  4. Chat locally: dietbuddy chat -m \"kya khau aaj?\"")
	fmt.Println("  5. Run the server: dietbuddy serve")
	fmt.Println("  6. Check readiness: dietbuddy status")
}

// consolePrinter delivers coach replies to stdout for local chat sessions.
type consolePrinter struct{}

func (consolePrinter) Deliver(_ context.Context, _ string, content string) error {
	fmt.Printf("\n%s %s\n\n", appName, content)
	return nil
}

func chatCmd() {
	message := ""
	name := "local"

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--debug", "-d":
			logger.SetLevel(logger.DEBUG)
			fmt.Println("🔍 Debug mode enabled")
		case "-m", "--message":
			if i+1 < len(args) {
				message = args[i+1]
				i++
			}
		case "-n", "--name":
			if i+1 < len(args) {
				name = args[i+1]
				i++
			}
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := providers.ValidateProviderConfig(cfg); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		fmt.Printf("Error creating provider: %v\n", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.StorePath())
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	deduper := dedup.New(st, cfg.DedupRetention(), sweepInterval(cfg))
	defer deduper.Close()

	coachAgent := agent.New(cfg, st, deduper, provider)
	coachAgent.RegisterDispatcher(agent.TransportCLI, consolePrinter{})

	identifier, err := agent.CanonicalIdentifier(agent.TransportCLI, name)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if message != "" {
		runChatTurn(coachAgent, identifier, name, message)
	} else {
		fmt.Printf("%s Interactive mode (Ctrl+C to exit)\n\n", appName)
		interactiveMode(coachAgent, identifier, name)
	}
}

// runChatTurn pushes one line through the same pipeline webhook deliveries
// take. The console dispatcher prints whatever the coach sends.
func runChatTurn(coachAgent *agent.Agent, identifier, name, text string) {
	out := coachAgent.HandleInbound(context.Background(), agent.InboundEvent{
		Transport:   agent.TransportCLI,
		Identifier:  identifier,
		DisplayName: name,
		EventID:     "cli-" + uuid.NewString(),
		Text:        text,
	})
	if out.Err != nil {
		fmt.Printf("Error (%s): %v\n", out.Status, out.Err)
	}
}

func interactiveMode(coachAgent *agent.Agent, identifier, name string) {
	prompt := fmt.Sprintf("%s You: ", appName)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".dietbuddy_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})

	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(coachAgent, identifier, name)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return
		}

		runChatTurn(coachAgent, identifier, name, input)
	}
}

func simpleInteractiveMode(coachAgent *agent.Agent, identifier, name string) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s You: ", appName)
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if input == "exit" || input == "quit" {
			fmt.Println("\nGoodbye!")
			return
		}

		runChatTurn(coachAgent, identifier, name, input)
	}
}

func serveCmd() {
	// Check for --debug flag
	args := os.Args[2:]
	for _, arg := range args {
		if arg == "--debug" || arg == "-d" {
			logger.SetLevel(logger.DEBUG)
			fmt.Println("🔍 Debug mode enabled")
			break
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := providers.ValidateProviderConfig(cfg); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		fmt.Printf("Error creating provider: %v\n", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.StorePath())
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		os.Exit(1)
	}

	deduper := dedup.New(st, cfg.DedupRetention(), sweepInterval(cfg))
	coachAgent := agent.New(cfg, st, deduper, provider)

	var sender agent.Dispatcher
	if cfg.WhatsApp.Enabled {
		waClient, err := whatsapp.NewClient(cfg)
		if err != nil {
			fmt.Printf("Configuration error: %v\n", err)
			os.Exit(1)
		}
		coachAgent.RegisterDispatcher(agent.TransportWhatsApp, waClient)
		sender = waClient
		fmt.Println("✓ WhatsApp sender configured")
	}

	channelManager, err := channels.NewManager(cfg, coachAgent)
	if err != nil {
		fmt.Printf("Error creating channel manager: %v\n", err)
		os.Exit(1)
	}

	srv := webhook.New(cfg, coachAgent, st, sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := channelManager.StartAll(ctx); err != nil {
		fmt.Printf("Error starting channels: %v\n", err)
		deduper.Close()
		st.Close()
		os.Exit(1)
	}
	if enabled := channelManager.GetEnabledChannels(); len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	}

	var checkins *checkin.Service
	if cfg.Checkin.Enabled {
		if sender == nil {
			fmt.Println("✗ Check-ins enabled but WhatsApp sending is not configured; skipping")
		} else {
			checkins, err = checkin.New(cfg, st, sender)
			if err != nil {
				fmt.Printf("Configuration error: %v\n", err)
				os.Exit(1)
			}
			checkins.Start()
			fmt.Printf("✓ Check-ins scheduled: %s\n", cfg.Checkin.Schedule)
		}
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("webhook", "Server error", map[string]interface{}{"error": err.Error()})
		}
	}()
	fmt.Printf("✓ Webhook listening on http://%s:%d/webhook\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WarnCF("webhook", "Shutdown error", map[string]interface{}{"error": err.Error()})
	}
	channelManager.StopAll(shutdownCtx)
	if checkins != nil {
		checkins.Close()
	}
	deduper.Close()
	st.Close()
	fmt.Println("✓ Stopped")
}

func statusCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	configPath := getConfigPath()

	fmt.Printf("%s Status\n", appName)
	fmt.Printf("Version: %s\n", formatVersion())
	build, _ := formatBuildInfo()
	if build != "" {
		fmt.Printf("Build: %s\n", build)
	}
	fmt.Println()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config:", configPath, "✓")
	} else {
		fmt.Println("Config:", configPath, "✗")
	}

	storePath := cfg.StorePath()
	if _, err := os.Stat(storePath); err == nil {
		fmt.Println("Store:", storePath, "✓")
	} else {
		fmt.Println("Store:", storePath, "not initialized")
	}

	fmt.Printf("Model: %s\n", cfg.Agent.Model)
	fmt.Printf("Timezone: %s\n", cfg.Location())

	status := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "not set"
	}

	providerName, configured, mode, err := providers.ProviderCredentialStatus(cfg)
	if err != nil {
		fmt.Printf("Provider: %s ✗ (%v)\n", providers.ActiveProviderName(cfg), err)
		configured = false
	} else if configured && mode != "" {
		fmt.Printf("Provider: %s ✓ (%s)\n", providerName, mode)
	} else {
		fmt.Printf("Provider: %s %s\n", providerName, status(configured))
	}

	sendReady := strings.TrimSpace(cfg.WhatsApp.AccessToken) != "" &&
		strings.TrimSpace(cfg.WhatsApp.PhoneNumberID) != ""
	verifyReady := strings.TrimSpace(cfg.WhatsApp.VerifyToken) != ""
	discordReady := strings.TrimSpace(cfg.Channels.Discord.Token) != ""

	fmt.Println("WhatsApp send:", status(sendReady))
	fmt.Println("WhatsApp verify token:", status(verifyReady))
	fmt.Println("Discord token:", status(discordReady))
	if cfg.Checkin.Enabled {
		fmt.Printf("Check-ins: enabled (%s)\n", cfg.Checkin.Schedule)
	} else {
		fmt.Println("Check-ins: disabled")
	}

	fmt.Println("Chat ready:", status(configured))
	serveReady := configured && (!cfg.WhatsApp.Enabled || (sendReady && verifyReady))
	fmt.Println("Serve ready:", status(serveReady))
}

func getConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dietbuddy", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(getConfigPath())
}

func sweepInterval(cfg *config.Config) time.Duration {
	if cfg.Dedup.SweepIntervalMinutes < 1 {
		return time.Hour
	}
	return time.Duration(cfg.Dedup.SweepIntervalMinutes) * time.Minute
}
