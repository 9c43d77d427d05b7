package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/underla/helpdesk/internal/chat"
	"github.com/underla/helpdesk/internal/config"
	"github.com/underla/helpdesk/internal/gateway"
	"github.com/underla/helpdesk/internal/logging"
	"github.com/underla/helpdesk/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the helpdesk server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if cfg.Store.Driver == "sqlite" && cfg.Store.Path == "" {
				cfg.Store.Path = filepath.Join(paths.Data, "helpdesk.db")
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			// Rebuild the logger with the configured level and style.
			if logLevel == "" {
				log = logging.New(nil, cfg.Logging.Level, cfg.Logging.ConsoleStyle)
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("opening conversation store: %w", err)
			}
			defer st.Close()

			model, err := chat.NewMistralModel(cfg.AI.APIKey, cfg.AI.Model)
			if err != nil {
				return fmt.Errorf("initializing chat model: %w", err)
			}
			if model == nil {
				log.Warn().Msg("no AI API key configured — visitors get the canned fallback reply")
			} else {
				log.Info().Str("model", cfg.AI.Model).Msg("AI receptionist ready")
			}

			temperature := 0.0
			if cfg.AI.Temperature != nil {
				temperature = *cfg.AI.Temperature
			}
			responder := chat.NewAIResponder(model, log, chat.Options{
				SystemPrompt: cfg.AI.SystemPrompt,
				MaxTokens:    cfg.AI.MaxTokens,
				Temperature:  temperature,
			})

			verifier, err := gateway.NewStaffVerifier(cfg.Auth)
			if err != nil {
				return fmt.Errorf("initializing staff auth: %w", err)
			}

			srv := gateway.New(cfg, log,
				gateway.WithStore(st),
				gateway.WithResponder(responder),
				gateway.WithVerifier(verifier),
			)

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, auto, custom)")

	return cmd
}

// openStore picks the configured conversation store backend.
func openStore(ctx context.Context, cfg config.Config) (store.ConversationStore, error) {
	switch cfg.Store.Driver {
	case "postgres":
		log.Info().Msg("using Postgres conversation store")
		return store.OpenPostgres(ctx, store.PostgresConfig{
			DSN:      cfg.Store.DSN,
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		}, log)
	case "sqlite":
		log.Info().Str("path", cfg.Store.Path).Msg("using SQLite conversation store")
		return store.OpenSQLite(cfg.Store.Path, log)
	case "memory":
		log.Warn().Msg("using in-memory conversation store — conversations are lost on restart")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
