package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cyclopcam/anonymiser/pkg/anonymise"
	"github.com/cyclopcam/anonymiser/pkg/detector"
	"github.com/cyclopcam/anonymiser/pkg/imageio"
	"github.com/cyclopcam/anonymiser/pkg/kibi"
	"github.com/cyclopcam/anonymiser/pkg/nn"
	"github.com/cyclopcam/anonymiser/pkg/session"
	"github.com/cyclopcam/anonymiser/pkg/visualize"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

const SessionCookie = "anonymiser-session"

var errUploadTooLarge = errors.New("image is too large")

// session returns the caller's session, creating a new one if the cookie is absent or stale
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	id := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	sess, created := s.sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

func (s *Server) detectorName(index int) string {
	choices := s.registry.Choices()
	if index < 0 || index >= len(choices) {
		return "invalid"
	}
	return choices[index]
}

func (s *Server) httpSession(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.session(w, r).Snapshot())
}

func (s *Server) httpReset(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.session(w, r).Reset()
	www.SendOK(w)
}

// The body is an encoded image (JPEG, PNG, etc)
func (s *Server) httpUpload(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := s.session(w, r)
	if r.ContentLength > s.Config.maxUploadBytes {
		check(fmt.Errorf("%w: %v exceeds the limit of %v", errUploadTooLarge, kibi.FormatBytes(r.ContentLength), kibi.FormatBytes(s.Config.maxUploadBytes)))
	}
	body := www.ReadLimited(w, r, s.Config.maxUploadBytes)
	img, err := imageio.Decode(body)
	check(err)
	sess.Upload(img)
	s.metrics.uploads.Inc()
	s.Log.Infof("Session %v uploaded %v x %v image", sess.ID, img.Width, img.Height)
	www.SendJSON(w, sess.Snapshot())
}

func (s *Server) httpOriginal(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	input, _ := s.session(w, r).Images()
	if input == nil {
		check(session.ErrNoImage)
	}
	sendJPEG(w, input, "")
}

func (s *Server) httpDetect(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := s.session(w, r)
	index, err := strconv.Atoi(params.ByName("index"))
	if err != nil {
		www.PanicBadRequestf("Invalid detector index '%v'", params.ByName("index"))
	}
	dparams := detector.Params{}
	for _, key := range []string{"threshold", "iou"} {
		if v := www.QueryValue(r, key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				www.PanicBadRequestf("Invalid value for %v: '%v'", key, v)
			}
			dparams[key] = f
		}
	}

	type detectJSON struct {
		Prediction *nn.Prediction `json:"prediction"`
		Cached     bool           `json:"cached"`
	}

	name := s.detectorName(index)
	start := time.Now()
	pred, cached, err := sess.SelectDetector(r.Context(), index, dparams)
	if err != nil {
		if !errors.Is(err, session.ErrNoImage) && !errors.Is(err, detector.ErrInvalidModelIndex) {
			s.metrics.detectFailed(name)
		}
		check(err)
	}
	s.metrics.detected(name, cached, time.Since(start))
	www.SendJSON(w, &detectJSON{
		Prediction: pred,
		Cached:     cached,
	})
}

func (s *Server) httpPrediction(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	pred, err := s.session(w, r).Prediction()
	check(err)
	www.SendJSON(w, pred)
}

// Detection preview, with boxes and labels drawn over the uploaded image
func (s *Server) httpPreview(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := s.session(w, r)
	pred, err := sess.Prediction()
	check(err)
	input, _ := sess.Images()
	sendJPEG(w, visualize.DrawBoxes(input, pred, queryBool(r, "adjusted", true)), "")
}

func (s *Server) httpFacets(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	facets, err := s.session(w, r).Facets(queryBool(r, "adjusted", true))
	check(err)
	www.SendJSON(w, facets)
}

func (s *Server) httpInstances(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	ids, err := s.session(w, r).InstanceIDs(www.RequiredQueryValue(r, "class"), queryBool(r, "adjusted", true))
	check(err)
	www.SendJSON(w, ids)
}

func (s *Server) httpAddBox(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type addBoxJSON struct {
		Box   nn.Box `json:"box"` // [x1, y1, x2, y2]
		Label string `json:"label"`
	}
	req := addBoxJSON{}
	www.ReadJSON(w, r, &req, 64*1024)
	pred, err := s.session(w, r).AddLabeledBox(req.Box, req.Label)
	check(err)
	www.SendJSON(w, pred)
}

// Returns the indices of the boxes under a point, nearest centre first
func (s *Server) httpBoxesAt(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	pred, err := s.session(w, r).Prediction()
	check(err)
	x := www.RequiredQueryInt(r, "x")
	y := www.RequiredQueryInt(r, "y")
	www.SendJSON(w, pred.BoxesAt(x, y, queryBool(r, "adjusted", true)))
}

type anonymiseJSON struct {
	ClassName       string         `json:"className"`
	InstanceID      string         `json:"instanceID"` // Defaults to "all"
	TargetType      nn.TargetType  `json:"targetType"` // Defaults to "box"
	IgnoreUserBoxes bool           `json:"ignoreUserBoxes"`
	Compound        bool           `json:"compound"`
	Mode            anonymise.Mode `json:"mode"`      // Defaults to "blur"
	Intensity       *float64       `json:"intensity"` // Blur intensity [0..1]
	Color           string         `json:"color"`     // Hex color, eg "#00FFFF"
}

// Returns the anonymised image
func (s *Server) httpAnonymise(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	req := anonymiseJSON{}
	www.ReadJSON(w, r, &req, 64*1024)
	sreq, err := s.makeAnonymiseRequest(&req)
	check(err)
	out, err := s.session(w, r).Anonymise(sreq)
	check(err)
	s.metrics.anonymised(string(sreq.Params.Mode), sreq.Compound)
	sendJPEG(w, out, "")
}

func (s *Server) makeAnonymiseRequest(req *anonymiseJSON) (session.Request, error) {
	sreq := session.Request{
		ClassName:       req.ClassName,
		InstanceID:      req.InstanceID,
		TargetType:      req.TargetType,
		IgnoreUserBoxes: req.IgnoreUserBoxes,
		Compound:        req.Compound,
		Params:          anonymise.NewParams(),
	}
	if sreq.InstanceID == "" {
		sreq.InstanceID = nn.AllInstances
	}
	if sreq.TargetType == "" {
		sreq.TargetType = nn.TargetBox
	}
	if req.Mode != "" {
		sreq.Params.Mode = req.Mode
	}
	if req.Intensity != nil {
		sreq.Params.BlurKernel = s.Config.Intensity.ConvertIntensity(*req.Intensity)
	}
	if req.Color != "" {
		c, err := anonymise.ConvertColorHexToRGB(req.Color)
		if err != nil {
			return sreq, err
		}
		sreq.Params.Color = c
	}
	return sreq, nil
}

// Most recent anonymised image. Add ?download=1 to save it as a file.
func (s *Server) httpResult(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	_, latest := s.session(w, r).Images()
	if latest == nil {
		www.Panic(http.StatusNotFound, "No image has been anonymised yet")
	}
	downloadName := ""
	if queryBool(r, "download", false) {
		downloadName = "anonymised.jpg"
	}
	sendJPEG(w, latest, downloadName)
}
