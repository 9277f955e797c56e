/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeallergy/value-rmi/internal/config"
	"github.com/codeallergy/value-rmi/internal/logging"
	"github.com/codeallergy/value-rmi/internal/model"
	"github.com/codeallergy/value-rmi/internal/observability"
	"github.com/codeallergy/value-rmi/rmiserver"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to a .toml or .yaml config (optional)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("rmid version=%s commit=%s\n", version, commit)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rmid: %v\n", err)
		os.Exit(2)
	}
	log, err := logging.New(logging.ProfileRuntime, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rmid: %v\n", err)
		os.Exit(2)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("rmid failed", zap.Error(err))
	}
	log.Info("rmid stopped")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	doc := model.NewDocument(log.Named("model"))
	service := rmiserver.NewReflectService(model.NewPrimitives(doc))

	srv, err := rmiserver.NewServer(cfg.Addr, service, model.NewHost(doc),
		rmiserver.WithLogger(log.Named("rmi")),
		rmiserver.WithBurstTimeout(cfg.BurstTimeout),
		rmiserver.WithWriteTimeout(cfg.WriteTimeout),
		rmiserver.WithMaxSessions(cfg.MaxSessions),
		rmiserver.WithAcceptRate(cfg.AcceptRate, cfg.AcceptBurst))
	if err != nil {
		return err
	}

	errs := make(chan error, 3)
	go func() { errs <- srv.Run() }()

	var ctl *rmiserver.ControlServer
	if cfg.ControlAddr != "" {
		ctl, err = rmiserver.NewControlServer(cfg.ControlAddr, srv.Stats, service, log.Named("control"))
		if err != nil {
			srv.Close()
			return err
		}
		go func() { errs <- ctl.Run() }()
	}

	var metrics *http.Server
	if cfg.MetricsAddr != "" {
		observability.RegisterMetrics()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metrics = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			errs <- metrics.ListenAndServe()
		}()
	}

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errs:
		err = errors.Wrap(err, "listener stopped")
	}

	if metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		metrics.Shutdown(shutdownCtx)
		cancel()
	}
	if ctl != nil {
		ctl.Close()
	}
	srv.Close()
	log.Info("document closed", zap.Int("elements", doc.Len()), zap.Int64("revision", doc.Revision()))
	return err
}
