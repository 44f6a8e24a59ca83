package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cyclopcam/anonymiser/pkg/anonymise"
	"github.com/cyclopcam/anonymiser/pkg/detector"
	"github.com/cyclopcam/anonymiser/pkg/feedback"
	"github.com/cyclopcam/anonymiser/pkg/imageio"
	"github.com/cyclopcam/anonymiser/pkg/nn"
	"github.com/cyclopcam/anonymiser/pkg/pwdhash"
	"github.com/cyclopcam/anonymiser/pkg/session"
	"github.com/cyclopcam/anonymiser/pkg/storage"
	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) setupHttpRoutes() error {
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	// Detection and anonymisation are expensive, so they are limited per IP.
	// Every route gets its own limiter.
	ratelimited := func(method, route string, handle httprouter.Handle) {
		limited := httprate.Limit(s.Config.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	adminHash := s.Config.adminHash
	if adminHash == nil {
		s.Log.Warnf("No adminPasswordHash configured. Feedback is readable by anybody")
	}
	admin := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			if adminHash != nil {
				username, password, _ := r.BasicAuth()
				if username != "admin" || !pwdhash.VerifyHash(password, adminHash) {
					w.Header().Set("WWW-Authenticate", `Basic realm="anonymiser"`)
					www.PanicUnauthorized()
				}
			}
			handle(w, r, params)
		})
	}

	handle("GET", "/api/ping", s.httpPing)
	handle("GET", "/api/detectors", s.httpDetectors)

	handle("GET", "/api/session", s.httpSession)
	handle("POST", "/api/session/reset", s.httpReset)
	ratelimited("POST", "/api/image", s.httpUpload)
	handle("GET", "/api/image", s.httpOriginal)
	ratelimited("POST", "/api/detect/:index", s.httpDetect)
	handle("GET", "/api/prediction", s.httpPrediction)
	handle("GET", "/api/preview", s.httpPreview)
	handle("GET", "/api/facets", s.httpFacets)
	handle("GET", "/api/instances", s.httpInstances)
	handle("POST", "/api/boxes", s.httpAddBox)
	handle("GET", "/api/boxesAt", s.httpBoxesAt)
	ratelimited("POST", "/api/anonymise", s.httpAnonymise)
	handle("GET", "/api/result", s.httpResult)

	ratelimited("POST", "/api/feedback/flag", s.httpFlag)
	ratelimited("POST", "/api/feedback/comment", s.httpComment)
	admin("GET", "/api/feedback/flagged", s.httpListFlagged)
	admin("GET", "/api/feedback/flagged/:folder", s.httpFlaggedPrediction)
	admin("GET", "/api/feedback/flagged/:folder/image", s.httpFlaggedImage)
	admin("GET", "/api/feedback/comments", s.httpListComments)

	router.Handler("GET", "/metrics", s.metrics.Handler())

	s.httpRouter = router
	return nil
}

// check maps domain errors to HTTP status codes, and panics with the result
func check(err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, session.ErrNoImage),
		errors.Is(err, session.ErrNoPrediction),
		errors.Is(err, detector.ErrInvalidModelIndex),
		errors.Is(err, nn.ErrUnknownClass),
		errors.Is(err, nn.ErrUnknownTargetType),
		errors.Is(err, nn.ErrInstanceIndex),
		errors.Is(err, nn.ErrInvalidGeometry),
		errors.Is(err, anonymise.ErrUnsupportedAnonymisationType),
		errors.Is(err, anonymise.ErrInvalidColor),
		errors.Is(err, imageio.ErrUnsupportedImage),
		errors.Is(err, feedback.ErrEmptyComment),
		errors.Is(err, feedback.ErrCommentTooLong),
		errors.Is(err, storage.ErrInvalidName),
		errors.Is(err, errUploadTooLarge):
		www.PanicBadRequestf("%v", err)
	case errors.Is(err, storage.ErrNotFound):
		www.Panic(http.StatusNotFound, err.Error())
	case errors.Is(err, detector.ErrDetectorUnavailable),
		errors.Is(err, nn.ErrInvalidPrediction),
		errors.Is(err, nn.ErrSerialization),
		errors.Is(err, context.DeadlineExceeded):
		www.Panic(http.StatusBadGateway, err.Error())
	}
	www.Check(err)
}
