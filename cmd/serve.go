package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/fyerfyer/transcript-qa/api"
	"github.com/fyerfyer/transcript-qa/api/handler"
	"github.com/fyerfyer/transcript-qa/internal/app"
	"github.com/fyerfyer/transcript-qa/internal/metrics"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the question answering API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(root)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}

			gin.SetMode(cfg.Server.Mode)
			logger.Info("Starting transcript QA server...")

			m := metrics.New(prometheus.DefaultRegisterer)
			builder := app.NewBuilder(cfg, logger, m)
			defer builder.Close()

			qaHandler := handler.NewQAHandler(builder, cfg.Server.RequestTimeout)
			r := api.SetupRouter(qaHandler, m)

			// 流式响应不设置写超时
			srv := &http.Server{
				Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
				Handler:     r,
				ReadTimeout: cfg.Server.ReadTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("Server is running on %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("failed to start server: %w", err)
				}
				return nil
			case <-quit:
			}
			logger.Info("Shutting down server...")

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			logger.Info("Server exited")
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	return cmd
}
