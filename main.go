// Lanternfall server entry point. Loads settings, wires the app, and runs
// the authoritative simulation until interrupted.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"lanternfall/internal/app"
	"lanternfall/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the JSON settings file")
		port       = flag.Int("port", 0, "override the configured listen port")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	server, err := app.New(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	stop := make(chan struct{})
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		<-signals
		close(stop)
	}()

	if err := server.Run(stop); err != nil {
		log.Fatalf("%v", err)
	}
}
