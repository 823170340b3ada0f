package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/solatis/mario/internal/core/api"
	"github.com/solatis/mario/internal/core/auth"
	"github.com/solatis/mario/internal/core/config"
	"github.com/solatis/mario/internal/core/server"
)

// Version is reported at startup.
const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC plumbing service",
	Long: `Serve Plumb and ListRules over gRPC. Callers authenticate with an API key
created by 'mario keys create'. SIGHUP reloads the rules.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "gRPC server host (default from config)")
	serveCmd.Flags().Int("port", 0, "gRPC server port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Serve.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Serve.Port, _ = cmd.Flags().GetInt("port")
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set MARIO_HMAC_SECRET environment variable)")
	}

	set, err := loadRules(cfg)
	if err != nil {
		return err
	}

	// API keys live in the journal database even when journaling is off
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	authenticator := auth.NewAuthenticator(secrets, j.Queries())

	engine, _, cleanup := newEngine(cfg)
	defer cleanup()

	var recorder api.Recorder
	if cfg.Journal.Enabled {
		recorder = j
	}
	service, err := api.NewPlumberService(engine, set, recorder, cfg.Serve.MaxMessageSize)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg.Serve, service, authenticator)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	addr, err := grpcServer.Listen()
	if err != nil {
		return err
	}

	log.Info().Str("version", Version).Str("addr", addr.String()).Int("rules", len(set.Compiled)).Msg("Starting mario plumbing service")
	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case err := <-errChan:
			return err
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				reloadRules(cfg, service)
				continue
			}
			log.Info().Msg("Shutting down gracefully...")
			return grpcServer.Shutdown(ctx)
		}
	}
}

// reloadRules swaps in freshly loaded rules. A broken rules file keeps the
// previous rules in service.
func reloadRules(cfg *config.Config, service *api.PlumberService) {
	set, err := loadRules(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Rule reload failed, keeping previous rules")
		return
	}
	service.SetRules(set)
	log.Info().Int("rules", len(set.Compiled)).Msg("Rules reloaded")
}
