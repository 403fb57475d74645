package main

import (
	"context"
	"os"

	"github.com/pterm/pterm"

	"github.com/chatdeck/chatdeck/internal/auth"
	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/chatdeck/chatdeck/internal/forwarder"
	"github.com/chatdeck/chatdeck/internal/logger"
	"github.com/chatdeck/chatdeck/internal/server"
	"github.com/chatdeck/chatdeck/internal/tokenstore"
	"github.com/chatdeck/chatdeck/internal/webhook"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	Execute()
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chatdeck",
	Short: "A dashboard backend aggregating chat platforms",
	Long: `Chatdeck aggregates Mattermost, Trello and Flock behind a unified set of
HTTP routes: authenticated API proxying, per-provider OAuth flows and a
signed webhook receiver.`,
	Run: runServer,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.Println(config.GetVersionInfo())
			os.Exit(0)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	config.InitFlags()
	rootCmd.PersistentFlags().AddFlagSet(pflag.CommandLine)
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")
}

func runServer(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		pterm.Error.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(&cfg.Logging); err != nil {
		pterm.Error.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	app := fx.New(
		fx.Supply(cfg),
		fx.NopLogger,
		forwarder.Module,
		auth.Module,
		tokenstore.Module,
		webhook.Module,
		server.Module,
		fx.Invoke(registerServer),
	)

	app.Run()
}

// registerServer ties the HTTP server's lifetime to the fx application.
func registerServer(lc fx.Lifecycle, s *server.Server, shutdowner fx.Shutdowner) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := s.Start(ctx); err != nil {
					logger.Error("Server stopped", zap.Error(err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
