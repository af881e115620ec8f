package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cribsync/lib/apierr"
	"cribsync/lib/browsercookie"
	"cribsync/lib/platforms/brightwheel"
	"cribsync/lib/platforms/nara"
	"cribsync/services/transfer"

	"github.com/spf13/cobra"
)

var (
	dryRun        *bool
	daysBack      *int
	workers       *int
	extractCookie *bool
)

func init() {
	dryRun = transferCmd.Flags().Bool("dry-run", false, "Run the full pipeline without writing anything to the destination.")
	daysBack = transferCmd.Flags().Int("days-back", 0, "Number of days to sync backward from today (default from config, 7).")
	workers = transferCmd.Flags().Int("workers", 0, "Concurrent upload workers (default from config, 4).")
	extractCookie = transferCmd.Flags().Bool("extract-cookie", false, "Scan installed browsers for the session cookie, print it and exit.")
	rootCmd.AddCommand(transferCmd)
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Transfers a date window of activities from Brightwheel to Nara.",
	Run: func(cmd *cobra.Command, args []string) {
		if *extractCookie {
			printSessionCookie()
			return
		}

		cfg, err := LoadConfig()
		if err != nil {
			fatal("failed to read config", err)
		}
		if *dryRun {
			cfg.Sync.DryRun = true
		}
		if *daysBack > 0 {
			cfg.Sync.DaysBack = *daysBack
		}
		if *workers > 0 {
			cfg.Sync.Workers = *workers
		}

		src, err := brightwheel.NewClient(brightwheel.ClientOptions{
			BaseUrl:          cfg.Brightwheel.BaseUrl,
			InteractiveLogin: promptForCookie,
			PageSize:         cfg.Sync.BatchSize,
		})
		if err != nil {
			fatal("failed to initialize brightwheel client", err)
		}

		var dst transfer.Destination
		var naraClient *nara.Client
		if cfg.Nara.Email != "" && cfg.Nara.Password != "" {
			naraClient = nara.NewClient(cfg.Nara.BaseUrl)
			dst = naraClient
		}

		until := time.Now()
		since := until.AddDate(0, 0, -cfg.Sync.DaysBack)
		slog.Info(
			"starting transfer",
			"since", since.Format("2006-01-02"),
			"until", until.Format("2006-01-02"),
			"dry_run", cfg.Sync.DryRun,
		)

		service := transfer.New(src, dst, transfer.Options{
			Login: func(ctx context.Context) error {
				if err := loginBrightwheel(ctx, src, cfg.Brightwheel); err != nil {
					return err
				}
				if naraClient == nil {
					return nil
				}
				_, err := naraClient.Login(ctx, cfg.Nara.Email, cfg.Nara.Password)
				return err
			},
			DryRun:      cfg.Sync.DryRun,
			Since:       since,
			Until:       until,
			Workers:     cfg.Sync.Workers,
			MaxAttempts: cfg.Sync.RetryMaxAttempts,
			RetryDelay:  time.Duration(cfg.Sync.RetryDelaySeconds * float64(time.Second)),
		})

		summary, err := service.Run(cmd.Context())
		if err != nil {
			fatal("transfer failed", err)
		}

		transfer.RenderSummary(os.Stdout, summary)
	},
}

// loginBrightwheel prefers a session cookie (configured, or scanned out
// of an installed browser) and falls back to the credential flow when
// the cookie is absent or rejected.
func loginBrightwheel(ctx context.Context, src *brightwheel.Client, cfg BrightwheelConfig) error {
	cookie := cfg.SessionCookie
	if cookie == "" {
		cookie = browsercookie.SessionCookie()
	}
	if cookie != "" {
		_, err := src.LoginCookie(ctx, cookie)
		if err == nil {
			slog.Info("authenticated with session cookie")
			return nil
		}
		var authErr *apierr.AuthError
		if !errors.As(err, &authErr) {
			return err
		}
		slog.Warn("session cookie rejected, falling back to credential login")
	}

	if cfg.Username == "" || cfg.Password == "" {
		return fmt.Errorf("no valid session cookie and no credentials configured")
	}
	_, err := src.LoginCredentials(ctx, cfg.Username, cfg.Password)
	if err == nil {
		slog.Info("authenticated with credentials")
	}
	return err
}

// promptForCookie is the interactive fallback for captcha-gated logins:
// the user logs in with a real browser and pastes the cookie here.
func promptForCookie(ctx context.Context) (string, error) {
	fmt.Println(browsercookie.Instructions())
	fmt.Print("Paste the session cookie value: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	cookie := strings.TrimSpace(line)
	if cookie == "" {
		return "", fmt.Errorf("no cookie entered")
	}
	return cookie, nil
}

func printSessionCookie() {
	cookie := browsercookie.SessionCookie()
	if cookie == "" {
		fmt.Println(browsercookie.Instructions())
		os.Exit(1)
	}
	fmt.Println(cookie)
}
