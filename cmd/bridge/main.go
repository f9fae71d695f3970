// Package main is the entry point of the BobbyCloud bridge.
// It loads the configuration, starts the websocket bridge and forwards
// vehicle telemetry to InfluxDB until interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"BobbyCloud/internal/core"
	"BobbyCloud/internal/util"
)

func main() {
	cfgPath := flag.StringP("config", "c", "configs/config.yml", "path to configuration file")
	drain := flag.Duration("drain", 10*time.Second, "how long to wait for pending writes on shutdown")
	flag.Parse()

	sys, err := core.NewSystem(*cfgPath)
	if err != nil {
		log.Fatalf("failed to create system: %v", err)
	}
	if err := util.SetupLogger(sys.Config().LogLevel); err != nil {
		log.Fatalf("logger: %v", err)
	}
	util.Info("[main] using config: %s (policy=%s)", *cfgPath, sys.Config().Policy)

	if err := sys.StartAll(); err != nil {
		log.Fatalf("failed to start system: %v", err)
	}

	// wait for Ctrl+C or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	util.Info("[main] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), *drain)
	defer cancel()
	if err := sys.StopAll(ctx); err != nil {
		util.Warn("[main] %v", err)
	}
	util.Info("[main] stopped cleanly")
}
