package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glimte/unitbus"
	"github.com/glimte/unitbus/api"
	"github.com/glimte/unitbus/config"
	"github.com/glimte/unitbus/interceptors"
	"github.com/glimte/unitbus/internal/gate"
	"github.com/glimte/unitbus/internal/reliability"
	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Failed replies to list and ping are retried
const (
	readRetries       = 3
	readRetryDelay    = 100 * time.Millisecond
	readRetryMaxDelay = time.Second
)

func main() {
	var (
		configPath string
		stubData   bool
		serve      bool
		origins    []string
	)

	rootCmd := &cobra.Command{
		Use:   "gate",
		Short: "Run the gate unit",
		Long: `The gate answers project commands from an in-memory project store and announces
every change to the projects room. With --serve it also accepts websocket clients on /ws.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var defaults map[string]any
			if serve {
				defaults = map[string]any{config.NetworkServerEnabled: true}
			}

			comp, err := unitbus.New(api.TypeInfrastructure, api.UnitGate,
				unitbus.WithConfigFile(configPath),
				unitbus.WithConfigOptions(config.WithDefaults(defaults)),
			)
			if err != nil {
				return err
			}
			defer comp.Close()

			store := gate.NewMemoryStore()
			if stubData {
				if err := gate.FillStubData(store); err != nil {
					return fmt.Errorf("failed to fill stub data: %w", err)
				}
				comp.Logger().Info("stub projects added", "count", store.Len())
			}

			// Replies that cannot be sent open the breaker; while open, commands are refused with an unsuccessful reply
			breaker := reliability.NewCircuitBreaker(reliability.WithName("gate-replies"))
			breaker.OnStateChange(func(name string, from, to reliability.State, reason string) {
				comp.Logger().Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String(), "reason", reason)
			})
			chain := interceptors.NewChain(
				interceptors.NewLoggingInterceptor(),
				interceptors.NewCircuitBreakerInterceptor(breaker).WithRejection(gate.Reject),
			)

			_, err = gate.NewService(comp.Bus(), store, comp.Version().String(),
				gate.WithInterceptors(chain),
				gate.WithAllowedOrigins(origins...),
				gate.WithReadRetry(reliability.NewExponentialBackoff(readRetryDelay, readRetryMaxDelay, 2, readRetries)),
			)
			if err != nil {
				return fmt.Errorf("failed to create gate service: %w", err)
			}
			return comp.Run(ctx)
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("UNITBUS_CONFIG"), "Path to the YAML configuration file")
	rootCmd.Flags().BoolVar(&stubData, "stub-data", false, "Start with a set of sample projects")
	rootCmd.Flags().BoolVar(&serve, "serve", false, "Accept websocket clients on /ws")
	rootCmd.Flags().StringSliceVar(&origins, "origin", []string{api.TypeWeb, api.TypeConnector}, "Unit types allowed to send project commands")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
