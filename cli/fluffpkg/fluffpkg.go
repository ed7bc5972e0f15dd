package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/glorpus-work/fluffpkg/internal/cli"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}

	cancel()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fluffpkg <command> [arguments]",
		Short: "A personal package manager for software outside the distribution",
		Long: `fluffpkg installs AppImages, release archives and .deb files into your
home directory and keeps them up to date:
- candidates come from source files or module commands
- installs get launchers and optional links into ~/.local/bin
- run 'fluffpkg help' for the list of commands`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := cli.BindFlags(cmd.Root()); err != nil {
				return err
			}
			cli.InitLogging()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"help"}
			}
			return cli.RunGrammar(cmd.Context(), args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	// everything after the command name belongs to the command grammar
	cmd.Flags().SetInterspersed(false)
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (env FLUFFPKG_CONFIG)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")

	cmd.SetHelpCommand(cli.NewHelpCmd())
	cmd.AddCommand(
		cli.NewConfigCmd(),
		cli.NewCacheCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}
