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

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/anonymiser/pkg/detector"
	"github.com/cyclopcam/anonymiser/server"
	"github.com/cyclopcam/logs"
)

// detectserver is a detection provider. It serves GET /info and POST /detect for the
// detectors in its config file, so that anonymiser instances can share them.
func main() {
	parser := argparse.NewParser("detectserver", "Detection provider for the anonymiser")
	configFilePath := parser.String("c", "config", &argparse.Options{Help: "Config file path. Only the 'detectors' section is used.", Default: "detectors.json"})
	port := parser.String("p", "port", &argparse.Options{Help: "HTTP listen address", Default: ":8000"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg, err := server.LoadConfig(*configFilePath)
	if err != nil {
		logger.Errorf("%v", err)
		return
	}
	registry, err := server.OpenDetectors(logger, cfg.Detectors, time.Duration(cfg.DetectTimeout))
	if err != nil {
		logger.Errorf("%v", err)
		return
	}
	defer registry.Close()

	httpServer := &http.Server{
		Addr:    *port,
		Handler: detector.NewServer(logger, registry),
	}

	signalIn := make(chan os.Signal, 1)
	signal.Notify(signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalIn
		logger.Infof("Received OS signal '%v'. Shutting down", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()

	logger.Infof("Listening on %v", *port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("%v", err)
	}
}
