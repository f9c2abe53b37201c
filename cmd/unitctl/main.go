package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// globalFlags are shared by all commands
type globalFlags struct {
	configPath   string
	gateInstance string
	timeout      time.Duration
	verbose      bool
}

func main() {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "unitctl",
		Short: "Talk to unitbus components from the command line",
		Long: `unitctl joins the network configured in the unitbus configuration as a connector unit
and sends commands to other units. The memory transport cannot be used across processes.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv("UNITBUS_CONFIG"), "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.gateInstance, "gate", "default", "Instance of the gate unit to address")
	rootCmd.PersistentFlags().DurationVarP(&flags.timeout, "timeout", "t", 10*time.Second, "Time to wait for a reply")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Write component logs to stderr")

	rootCmd.AddCommand(
		newPingCmd(flags),
		newProjectsCmd(flags),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newPingCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the gate is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			start := time.Now()
			reply, err := ping(cmd.Context(), s)
			if err != nil {
				return err
			}
			fmt.Printf("%s answered in %s (version %s)\n", reply.GetSender(), time.Since(start).Round(time.Millisecond), reply.Version)
			return nil
		},
	}
}
