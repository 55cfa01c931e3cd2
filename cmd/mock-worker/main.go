/*
Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.

SPDX-License-Identifier: MIT-0
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"tee/trusted-ops/internal/metrics"
	"tee/trusted-ops/internal/shielding"
	"tee/trusted-ops/internal/worker"
	"time"
)

var version = "dev"

func setupLogging(logLevel string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL value (%s): %w", logLevel, err)
	}
	log.SetLevel(level)
	log.Debugf("LOG_LEVEL=%s", level)
	return nil
}

func main() {
	config, err := worker.LoadConfig()
	if err != nil {
		log.Fatalf("failed loading config: %v", err)
	}
	if err := setupLogging(config.LogLevel); err != nil {
		log.Fatalf("%v", err)
	}
	worker.Version = "mock-worker/" + version

	key, err := shielding.LoadOrGenerateKey(worker.ShieldingKeyEnv, false)
	if err != nil {
		log.Fatalf("failed loading shielding key: %v", err)
	}

	server := worker.NewServer(key, config.Options()...)
	log.Infof("shard %s (%s), mrenclave %s, enclave signer %s",
		server.Shard().Base58(), server.Shard().Hex(), server.Mrenclave().Hex(), server.EnclaveSignerAccount().Hex())

	var metricsServer *metrics.Server
	if config.MetricsAddr != "" {
		metricsServer = metrics.NewServer(config.MetricsAddr, prometheus.DefaultGatherer)
		metricsServer.Start()
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("mock worker %s listening on %s", worker.Version, httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("worker server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Errorf("worker shutdown failed: %v", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Errorf("metrics shutdown failed: %v", err)
		}
	}
}
