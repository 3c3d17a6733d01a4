package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/webbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webbridge/internal/infrastructure/server"
)

type flags struct {
	configFile  string
	port        string
	host        string
	dev         bool
	multiClient bool
	blocking    bool
	rootFolder  string
	page        string
}

func main() {
	var f flags

	rootCmd := &cobra.Command{
		Use:   "webbridge",
		Short: "Serve a window and bridge it to native callbacks",
		Long: `webbridge hosts a page, connects browsers to it over a WebSocket and
runs the demo bindings: save, saveAll and exit_app.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f.page)
		},
	}

	rootCmd.Flags().StringVar(&f.configFile, "config", "", "TOML or YAML config file")
	rootCmd.Flags().StringVar(&f.port, "port", "", "Listen port (0 picks a free one)")
	rootCmd.Flags().StringVar(&f.host, "host", "", "Listen host")
	rootCmd.Flags().BoolVar(&f.dev, "dev", false, "Development logging")
	rootCmd.Flags().BoolVar(&f.multiClient, "multi-client", false, "Give every browser its own client id")
	rootCmd.Flags().BoolVar(&f.blocking, "blocking", false, "Dispatch window events one at a time")
	rootCmd.Flags().StringVar(&f.rootFolder, "root", "", "Folder served under the window URL")
	rootCmd.Flags().StringVar(&f.page, "page", "", "Page file inside --root (default: built-in demo page)")

	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), server.Version)
		},
	}
}

// loadConfig layers defaults, the config file, environment and finally any
// flag the user set explicitly.
func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configFile != "" {
		cfg, err = config.LoadFile(f.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Server.Port = f.port
	}
	if changed("host") {
		cfg.Server.Host = f.host
	}
	if changed("dev") {
		cfg.Logging.Development = f.dev
	}
	if changed("multi-client") {
		cfg.Bridge.MultiClient = f.multiClient
	}
	if changed("blocking") {
		cfg.Bridge.EventBlocking = f.blocking
	}
	if changed("root") {
		cfg.Bridge.RootFolder = f.rootFolder
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, page string) error {
	logger := logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)
	defer logger.Sync()

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	win := srv.Manager().NewWindow()
	newDemo(logger.Component("demo")).bind(win, srv.Manager().Exit)

	content := page
	if content == "" {
		content = demoPage
	}
	url, err := win.Show(content)
	if err != nil {
		return err
	}
	logger.Info("Open the window in a browser", zap.String("url", url))

	return srv.Run(ctx)
}
