// Package server is the HTTP backend of the anonymiser web app
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/anonymiser/pkg/detector"
	"github.com/cyclopcam/anonymiser/pkg/feedback"
	"github.com/cyclopcam/anonymiser/pkg/nn"
	"github.com/cyclopcam/anonymiser/pkg/session"
	"github.com/cyclopcam/anonymiser/pkg/storage"
	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
)

type Server struct {
	Log    logs.Log
	Config *Config

	signalIn     chan os.Signal
	httpServer   *http.Server
	httpRouter   *httprouter.Router
	registry     *detector.Registry
	sessions     *session.Manager
	feedback     *feedback.Store
	metrics      *Metrics
	shutdownOnce sync.Once
}

// NewServerFromFile reads a JSON config file, and creates a server from it
func NewServerFromFile(logger logs.Log, configFile string) (*Server, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	return NewServer(logger, cfg)
}

func NewServer(logger logs.Log, cfg *Config) (*Server, error) {
	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	registry, err := OpenDetectors(logger, cfg.Detectors, time.Duration(cfg.DetectTimeout))
	if err != nil {
		return nil, err
	}

	// Open blob store
	var blobs storage.Storage
	if cfg.Feedback.GCS != nil {
		// Google Cloud Storage
		blobs, err = storage.NewStorageGCS(logger, cfg.Feedback.GCS.Bucket, cfg.Feedback.GCS.Prefix)
	} else {
		// Filesystem
		blobs, err = storage.NewStorageFS(logger, cfg.Feedback.Filesystem.Root)
	}
	if err != nil {
		registry.Close()
		return nil, err
	}

	fb, err := feedback.Open(logger, cfg.DB, blobs)
	if err != nil {
		registry.Close()
		return nil, err
	}

	sessions := session.NewManager(logger, registry, session.ManagerConfig{
		DetectTimeout: time.Duration(cfg.DetectTimeout),
		IdleTimeout:   time.Duration(cfg.IdleTimeout),
	})
	sessions.StartExpiry()

	s := &Server{
		Log:      logger,
		Config:   cfg,
		registry: registry,
		sessions: sessions,
		feedback: fb,
		metrics:  NewMetrics(sessions.Len),
	}
	if err := s.setupHttpRoutes(); err != nil {
		s.closeServices()
		return nil, err
	}
	return s, nil
}

// OpenDetectors creates a registry from a remote provider, or from the locally configured
// detectors. timeout bounds each request to a model server.
func OpenDetectors(logger logs.Log, cfg DetectorsConfig, timeout time.Duration) (*detector.Registry, error) {
	if cfg.Remote != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return detector.NewRemoteRegistry(ctx, logger, detector.NewRemote(logger, cfg.Remote, nil))
	}
	registry := detector.NewRegistry(logger)
	for _, dc := range cfg.Static {
		switch dc.Type {
		case DetectorTypeModel:
			model := nn.ModelConfig{Width: dc.Width, Height: dc.Height, Classes: dc.Classes}
			client := detector.NewModelClient(logger, dc.URL, model, nil, timeout)
			registry.Add(dc.Name, dc.Description, detector.NewObjectDetector(client, dc.Threads))
		default:
			det, err := detector.LoadStatic(dc.File)
			if err != nil {
				registry.Close()
				return nil, fmt.Errorf("Failed to load detector '%v': %w", dc.Name, err)
			}
			registry.Add(dc.Name, dc.Description, det)
		}
	}
	logger.Infof("Loaded %v detectors", registry.Len())
	return registry, nil
}

// Handler returns the root HTTP handler, which is useful for tests
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// port example: ":8080"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
			s.Shutdown()
		} else {
			// This path gets hit when Shutdown() is called by something other than ourselves, and Shutdown() closes the signalIn channel.
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

// Shutdown may be called more than once. Later calls wait for the first to finish.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := s.httpServer.Shutdown(ctx)
		cancel()
		if err != nil {
			s.Log.Warnf("HTTP server shutdown error: %v", err)
		}
	}
	s.closeServices()
	s.Log.Infof("Shutdown complete")
}

func (s *Server) closeServices() {
	s.sessions.Close()
	s.feedback.Close()
	s.registry.Close()
}
