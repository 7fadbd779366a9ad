package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/musebot/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard()
		},
	}
}

// runOnboard walks through the minimum viable config: bot token, data
// API coordinates, and optional extras. Secrets go to .env.local; the
// config file is written with secrets stripped.
func runOnboard() {
	var (
		token     string
		baseURL   string
		clientKey string
		notifyURL string
		telemetry bool
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token").
				Description("From @BotFather.").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("token is required")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Data API base URL").
				Placeholder("https://data-api.internal:8443").
				Value(&baseURL).
				Validate(func(s string) error {
					s = strings.TrimSpace(s)
					if s == "" {
						return errors.New("base URL is required")
					}
					u, err := url.Parse(s)
					if err != nil || u.Scheme == "" || u.Host == "" {
						return errors.New("must be a full http(s) URL")
					}
					return nil
				}),
			huh.NewInput().
				Title("Data API client key").
				Description("Internal service credential.").
				EchoMode(huh.EchoModePassword).
				Value(&clientKey).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("client key is required")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Execution event stream URL (optional)").
				Description("WebSocket feed of completed generations. Leave empty to skip delivery.").
				Placeholder("wss://exec.internal/events").
				Value(&notifyURL).
				Validate(func(s string) error {
					s = strings.TrimSpace(s)
					if s == "" {
						return nil
					}
					u, err := url.Parse(s)
					if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
						return errors.New("must be a ws:// or wss:// URL")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Enable OpenTelemetry tracing?").
				Value(&telemetry),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Setup cancelled.")
			return
		}
		fmt.Printf("Setup failed: %v\n", err)
		return
	}

	cfg := config.Default()
	cfg.Telegram.Token = strings.TrimSpace(token)
	cfg.DataAPI.BaseURL = strings.TrimSpace(baseURL)
	cfg.DataAPI.ClientKey = strings.TrimSpace(clientKey)
	cfg.Execution.NotifyURL = strings.TrimSpace(notifyURL)
	cfg.Telemetry.Enabled = telemetry

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Setup produced an invalid config: %v\n", err)
		return
	}

	cfgPath := resolveConfigPath()
	envPath := filepath.Join(filepath.Dir(cfgPath), ".env.local")

	env := fmt.Sprintf("# musebot secrets. Source this file before starting the bot.\nexport MUSEBOT_TELEGRAM_TOKEN=%s\nexport MUSEBOT_DATA_API_KEY=%s\n",
		cfg.Telegram.Token, cfg.DataAPI.ClientKey)
	if err := os.WriteFile(envPath, []byte(env), 0600); err != nil {
		fmt.Printf("Could not write %s: %v\n", envPath, err)
		return
	}

	// The config file carries no secrets; those live in .env.local only.
	cfg.StripSecrets()
	if err := config.Save(cfgPath, cfg); err != nil {
		fmt.Printf("Could not write %s: %v\n", cfgPath, err)
		return
	}

	fmt.Println("Setup complete.")
	fmt.Println()
	fmt.Printf("  Config saved to  %s\n", cfgPath)
	fmt.Printf("  Secrets saved to %s\n", envPath)
	fmt.Println()
	fmt.Println("Start the bot with:")
	fmt.Println()
	fmt.Printf("  source %s && ./musebot\n", envPath)
}
