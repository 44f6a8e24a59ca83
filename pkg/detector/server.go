package detector

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/cyclopcam/anonymiser/pkg/imageio"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

// Base64 inflates the JPEG by a third
const maxDetectRequestBytes = 64 * 1024 * 1024

// Server is a detection provider. It exposes a Registry over HTTP, so that Remote clients
// can use the registry's detectors.
type Server struct {
	log      logs.Log
	registry *Registry
	router   *httprouter.Router
}

func NewServer(log logs.Log, registry *Registry) *Server {
	s := &Server{
		log:      log,
		registry: registry,
		router:   httprouter.New(),
	}
	www.Handle(log, s.router, "GET", "/info", s.httpInfo)
	www.Handle(log, s.router, "POST", "/detect", s.httpDetect)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) httpInfo(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.registry.Info())
}

func (s *Server) httpDetect(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	req := DetectRequest{}
	www.ReadJSON(w, r, &req, maxDetectRequestBytes)
	jpg, err := base64.StdEncoding.DecodeString(req.ImageStr)
	if err != nil {
		www.PanicBadRequestf("image_str is not valid base64: %v", err)
	}
	img, err := imageio.Decode(jpg)
	if err != nil {
		www.PanicBadRequestf("%v", err)
	}
	pred, err := s.registry.Detect(r.Context(), img, req.ModelIndex, nil)
	if errors.Is(err, ErrInvalidModelIndex) {
		www.PanicBadRequestf("%v", err)
	}
	www.Check(err)
	www.SendJSON(w, &DetectResponse{Predictions: pred})
}
