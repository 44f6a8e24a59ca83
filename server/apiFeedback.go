package server

import (
	"net/http"

	"github.com/cyclopcam/anonymiser/pkg/session"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

// Flag the session's image and its current record (including user boxes) for review
func (s *Server) httpFlag(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type flagJSON struct {
		ShareImage bool `json:"shareImage"` // If false, only the predictions are stored
	}
	req := flagJSON{}
	www.ReadJSON(w, r, &req, 4096)

	sess := s.session(w, r)
	snap := sess.Snapshot()
	if snap.Prediction == nil {
		if snap.State == session.StateNoImage {
			check(session.ErrNoImage)
		}
		check(session.ErrNoPrediction)
	}
	input, _ := sess.Images()
	if !req.ShareImage {
		input = nil
	}
	sub, err := s.feedback.StoreImageWithPredictions(input, snap.Prediction, s.detectorName(snap.DetectorIndex))
	check(err)
	s.metrics.feedbackFlagged.Inc()
	www.SendJSON(w, sub)
}

func (s *Server) httpComment(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type commentJSON struct {
		Name string `json:"name"`
		Text string `json:"text"`
	}
	req := commentJSON{}
	www.ReadJSON(w, r, &req, 16*1024)
	c, err := s.feedback.StoreFeedback(req.Name, req.Text)
	check(err)
	s.metrics.feedbackText.Inc()
	www.SendJSON(w, c)
}

func (s *Server) httpListFlagged(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	subs, err := s.feedback.ListFlaggedDirectory()
	check(err)
	www.SendJSON(w, subs)
}

func (s *Server) httpFlaggedPrediction(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	_, pred, err := s.feedback.LoadImageWithPredictions(params.ByName("folder"))
	check(err)
	www.SendJSON(w, pred)
}

func (s *Server) httpFlaggedImage(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	img, _, err := s.feedback.LoadImageWithPredictions(params.ByName("folder"))
	check(err)
	if img == nil {
		www.Panic(http.StatusNotFound, "The user chose not to share this image")
	}
	sendJPEG(w, img, "")
}

func (s *Server) httpListComments(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	comments, err := s.feedback.ListFeedback()
	check(err)
	www.SendJSON(w, comments)
}
