package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/anonymiser/server"
	"github.com/cyclopcam/logs"
)

func main() {
	parser := argparse.NewParser("anonymiser", "Web service that blurs or paints over detected objects in images")
	configFilePath := parser.String("c", "config", &argparse.Options{Help: "Config file path", Default: "anonymiser.json"})
	port := parser.String("p", "port", &argparse.Options{Help: "HTTP listen address", Default: ":8080"})
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

	s, err := server.NewServerFromFile(logger, *configFilePath)
	if err != nil {
		logger.Errorf("%v", err)
		logger.Close()
		os.Exit(1)
	}
	s.ListenForKillSignals()
	if err := s.ListenHTTP(*port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("%v", err)
	}
	s.Shutdown()
	logger.Close()
}
