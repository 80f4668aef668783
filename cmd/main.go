package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"memocal/internal/audio"
	"memocal/internal/calsync"
	"memocal/internal/config"
	"memocal/internal/extract"
	"memocal/internal/google"
	"memocal/internal/icloud"
	"memocal/internal/pipeline"
	"memocal/internal/transcribe"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
)

// exitExtractionFailed is the exit status when no date/time was found in a memo.
const exitExtractionFailed = 2

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "memocal",
		Usage: "Turn voice memos into calendar reminders.",
		Commands: []*cli.Command{
			authCommand(),
			remindCommand(),
			scheduleCommand(),
			extractCommand(),
			listCommand(),
			deleteCommand(),
			calendarsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Info("Starting Google authentication flow.")

			oauthConfig, err := google.GetOAuthConfigForAuthFlow(cfg.GoogleClientID, cfg.GoogleClientSecret)
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, oauthConfig, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			accountName := cfg.GoogleAccount
			if accountName == "" {
				fmt.Print("Enter a name for this account (e.g., 'personal', 'work'): ")
				accountName, _ = reader.ReadString('\n')
				accountName = strings.TrimSpace(accountName)
			}
			tokenFile := google.TokenFile(accountName)

			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func dryRunFlag() cli.Flag {
	return &cli.BoolFlag{Name: "dry-run", Usage: "Log the reminder that would be created without creating it."}
}

func remindCommand() *cli.Command {
	return &cli.Command{
		Name:      "remind",
		Usage:     "Transcribe a voice memo and create a calendar reminder from it.",
		ArgsUsage: "<audio-file>",
		Flags:     []cli.Flag{dryRunFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("expected exactly one audio file", 1)
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			p, err := newPipeline(c.Context, logger, cfg, c.Bool("dry-run"))
			if err != nil {
				return err
			}

			return reportOutcome(p.ProcessAudio(c.Context, c.Args().First()))
		},
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "schedule",
		Usage:     "Create a calendar reminder from an already transcribed memo.",
		ArgsUsage: "<text...>",
		Flags:     []cli.Flag{dryRunFlag()},
		Action: func(c *cli.Context) error {
			text := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(text) == "" {
				return cli.Exit("expected the memo text", 1)
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			p, err := newPipeline(c.Context, logger, cfg, c.Bool("dry-run"))
			if err != nil {
				return err
			}

			return reportOutcome(p.Run(c.Context, text))
		},
	}
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Show the date/time and description recognized in a memo text.",
		ArgsUsage: "<text...>",
		Action: func(c *cli.Context) error {
			text := strings.Join(c.Args().Slice(), " ")
			ext := extract.New().Extract(text)
			if !ext.Dated() {
				fmt.Printf("timestamp:   (none)\ndescription: %s\n", ext.Description)
				return cli.Exit("no date/time found", exitExtractionFailed)
			}
			fmt.Printf("timestamp:   %s\ndescription: %s\n", ext.ISO(), ext.Description)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List upcoming reminders.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max", Usage: "Maximum number of reminders to show. Defaults to MEMOCAL_LIST_MAX."},
			&cli.TimestampFlag{Name: "from", Layout: time.RFC3339, Usage: "List reminders starting at or after this time (RFC 3339)."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newCalendarClient(c.Context, logger, cfg)
			if err != nil {
				return err
			}

			from := time.Now()
			if ts := c.Timestamp("from"); ts != nil {
				from = *ts
			}
			max := cfg.ListMax
			if c.IsSet("max") {
				max = c.Int("max")
			}

			events, err := client.List(c.Context, from, max)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("No upcoming reminders found.")
				return nil
			}
			for _, e := range events {
				fmt.Printf("%s  %s  %s\n", e.Start.In(client.Location()).Format("2006-01-02 15:04"), e.ID, e.Summary)
			}
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a reminder by event id.",
		ArgsUsage: "<event-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("expected exactly one event id", 1)
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newCalendarClient(c.Context, logger, cfg)
			if err != nil {
				return err
			}

			if err := client.Delete(c.Context, c.Args().First()); err != nil {
				if calsync.IsKind(err, calsync.KindNotFound) {
					return cli.Exit(fmt.Sprintf("no reminder with id %s", c.Args().First()), 1)
				}
				return err
			}
			fmt.Printf("Deleted %s\n", c.Args().First())
			return nil
		},
	}
}

func calendarsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "List the Google calendars the account can write to.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Backend != config.BackendGoogle {
				return cli.Exit("calendars is only supported for the google backend", 1)
			}
			gClient, err := newGoogleClient(c.Context, logger, cfg)
			if err != nil {
				return err
			}

			calendars, err := gClient.DiscoverCalendars(c.Context)
			if err != nil {
				return err
			}
			for id, name := range calendars {
				fmt.Printf("%s\t%s\n", id, name)
			}
			return nil
		},
	}
}

// reportOutcome prints the result of a pipeline run and maps it to an exit status.
func reportOutcome(out *pipeline.Outcome, err error) error {
	if out == nil {
		return err
	}

	switch out.State {
	case pipeline.StateScheduled:
		fmt.Printf("Scheduled %q at %s (event %s)\n", out.Reminder.Summary, out.Reminder.Start.Format(time.RFC3339), out.EventID)
	case pipeline.StateExtractionFailed:
		fmt.Printf("Could not extract a date and time from: %s\n", out.Transcript)
		return cli.Exit("no date/time found", exitExtractionFailed)
	case pipeline.StateSyncFailed:
		fmt.Printf("Reminder %q at %s was not created.\n", out.Reminder.Summary, out.Reminder.Start.Format(time.RFC3339))
		return err
	default:
		if out.DryRun {
			fmt.Printf("[dry run] %q at %s\n", out.Reminder.Summary, out.Reminder.Start.Format(time.RFC3339))
		}
	}
	return err
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}
	return cfg, setupLogger(cfg.LogLevel), nil
}

func newPipeline(ctx context.Context, logger *slog.Logger, cfg *config.Config, dryRun bool) (*pipeline.Pipeline, error) {
	client, err := newCalendarClient(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}

	transcriber := transcribe.NewHTTPTranscriber(transcribe.Config{
		BaseURL:  cfg.STTURL,
		APIKey:   cfg.STTAPIKey,
		Model:    cfg.STTModel,
		Language: cfg.STTLanguage,
		Timeout:  cfg.STTTimeout,
	})

	return pipeline.New(logger, extract.New(), client,
		pipeline.WithAudio(audio.NewFFmpeg(cfg.FFmpegPath), transcriber, cfg.WorkDir),
		pipeline.WithDryRun(dryRun),
	)
}

func newCalendarClient(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*calsync.Client, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var store calsync.Store
	switch cfg.Backend {
	case config.BackendICloud:
		store, err = icloud.NewClient(logger, cfg.CalDAVEndpoint, cfg.ICloudUsername, cfg.ICloudPassword)
	default:
		store, err = newGoogleClient(ctx, logger, cfg)
	}
	if err != nil {
		return nil, err
	}

	return calsync.NewClient(logger, store, cfg.CalendarID, loc)
}

func newGoogleClient(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*google.CalendarClient, error) {
	if cfg.GoogleServiceAccountFile != "" {
		return google.NewServiceAccountClient(ctx, logger, cfg.GoogleServiceAccountFile)
	}

	account := cfg.GoogleAccount
	if account == "" {
		accounts, err := google.GetTokenAccounts(".")
		if err != nil {
			return nil, fmt.Errorf("could not find any google accounts, did you run auth command? %w", err)
		}
		switch len(accounts) {
		case 0:
			return nil, fmt.Errorf("no google accounts found. Run the 'auth' command first")
		case 1:
			account = accounts[0]
		default:
			return nil, fmt.Errorf("several google accounts found (%s), set %s_GOOGLE_ACCOUNT", strings.Join(accounts, ", "), config.Prefix)
		}
	}

	return google.NewClient(ctx, logger, cfg.GoogleClientID, cfg.GoogleClientSecret, account)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
