package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/custlens/internal/dashboard"
	"github.com/KaramelBytes/custlens/internal/dataset"
	"github.com/KaramelBytes/custlens/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve dashboard sessions over HTTP",
	Long: `Serve dashboard sessions over HTTP. The dataset is loaded once up front; a load
failure stops the server before it listens. POST /dataset/reload rereads the file for
sessions opened afterwards.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DataPath == "" {
			_, err := loadDataset()
			return err
		}
		cache := dataset.NewCache(cfg.Loader(), logger)
		ds, err := cache.Get(cfg.DataPath)
		if err != nil {
			return err
		}
		logger.Info("dataset ready", zap.String("path", cfg.DataPath), zap.Int("rows", ds.Len()), zap.Int("columns", len(ds.Names())))

		addr := cfg.ServerAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		m := dashboard.NewManager(cache, cfg.DataPath, newRouter(), cfg.DashboardOptions(), logger)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		okf(cmd.OutOrStdout(), "Serving %s on http://%s", ds.Name, addr)
		return server.New(m, logger).ListenAndServe(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server_addr)")
}
