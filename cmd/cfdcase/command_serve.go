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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sourceplane/cfdcase/internal/api"
	"github.com/sourceplane/cfdcase/internal/pipeline"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("listen") {
			appConfig.Server.Listen = listenAddr
		}
		return serve()
	},
}

func registerServeCommand(root *cobra.Command) {
	root.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (overrides server.listen)")
}

func serve() error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctrl := pipeline.NewController(pipeline.Options{
		Executables:  appConfig.Executables,
		GraceTimeout: appConfig.GraceTimeout,
		OutputTail:   appConfig.OutputTail,
		Logger:       logger,
		Metrics:      pipeline.NewMetrics(reg),
	})

	srv := &api.Server{
		Logger:   logger,
		Pipeline: ctrl,
		CaseRoot: appConfig.Server.CaseRoot,
	}
	if appConfig.Server.Metrics {
		srv.Gatherer = reg
	}

	httpSrv := &http.Server{
		Addr:              appConfig.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cfdcase listening", "addr", httpSrv.Addr, "case_root", srv.CaseRoot)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.GraceTimeout+10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
