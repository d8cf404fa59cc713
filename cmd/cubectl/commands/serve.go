package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arx-os/datakernel-cube/internal/api"
	"github.com/arx-os/datakernel-cube/internal/config"
	"github.com/arx-os/datakernel-cube/internal/logging"
)

// poolStatsInterval is how often serve publishes the buffer pool's
// created/pooled gauges, matching core/backend/cache/monitoring.go's
// ticker-driven metrics-refresh loop.
const poolStatsInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the demo aggregation over internal/api's HTTP/JSON façade",
	Long: `serve starts the optional HTTP/JSON façade described in cubectl's
server configuration section. It is a demo entry point only -- embedding
programs should drive internal/cube.Engine directly rather than going
through this façade.`,
	RunE: runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}

	go reportPoolStatsPeriodically(cmd.Context(), a)

	addr := config.Get().Server.BindAddress
	if addr == "" {
		addr = ":8080"
	}

	router := api.NewRouter(api.NewHandler(a.Engine))
	logging.Logger.Sugar().Infof("cubectl serve listening on %s", addr)
	if err := router.Run(addr); err != nil {
		return fmt.Errorf("serving api: %w", err)
	}
	return nil
}

func reportPoolStatsPeriodically(ctx context.Context, a *app) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.Metrics.ReportPoolStats(a.Pool)
		case <-ctx.Done():
			return
		}
	}
}
