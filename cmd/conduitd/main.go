// Command conduitd is the CLI entrypoint for conduit: validate a config
// file, or run a single-agent chat loop against it.
//
//	conduitd chat --config conduit.yaml --agent assistant
//	conduitd validate --config conduit.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/conduit/internal/config"
	"github.com/kadirpekel/conduit/internal/logging"
)

// CLI defines conduitd's subcommands.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Validate ValidateCmd `cmd:"" help:"Load and validate a config file."`
	Chat     ChatCmd     `cmd:"" help:"Run a single agent in an interactive chat loop."`

	Config   string `short:"c" help:"Path to config YAML." type:"path" default:"conduit.yaml"`
	DotEnv   string `help:"Path to a .env file loaded before config expansion." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:""`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	fmt.Printf("conduitd %s\n", version)
	return nil
}

// ValidateCmd loads and validates a config file without running anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	fmt.Printf("config %q is valid: %d adapter(s) configured\n", cli.Config, len(cfg.LLMs))
	return nil
}

func loadConfig(cli *CLI) (*config.Config, error) {
	loader := config.NewLoader(cli.DotEnv)
	return loader.Load(cli.Config)
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("conduitd"),
		kong.Description("Conduit agent orchestration CLI."),
		kong.UsageOnError(),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	ctx.BindTo(runCtx, (*context.Context)(nil))
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "conduitd:", err)
		os.Exit(1)
	}
}

func newLogger(cli *CLI, cfg *config.Config) *slog.Logger {
	level := cfg.Logger.Level
	if cli.LogLevel != "" {
		level = cli.LogLevel
	}
	logger := logging.New(os.Stderr, logging.ParseLevel(level))
	slog.SetDefault(logger)
	return logger
}
