package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/anonymiser/pkg/imageio"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	ping := &pingJSON{
		Time: time.Now().Unix(),
	}
	www.SendJSON(w, ping)
}

func (s *Server) httpDetectors(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.registry.Info())
}

// sendJPEG writes img as a JPEG. If downloadName is not empty, the browser is asked to save it.
func sendJPEG(w http.ResponseWriter, img *cimg.Image, downloadName string) {
	b, err := imageio.EncodeJPEG(img, imageio.DefaultJPEGQuality)
	www.Check(err)
	sendJPEGBytes(w, b, downloadName)
}

func sendJPEGBytes(w http.ResponseWriter, b []byte, downloadName string) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	if downloadName != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%v"`, downloadName))
	}
	www.CacheNever(w)
	w.Write(b)
}

// queryBool returns def if key is absent
func queryBool(r *http.Request, key string, def bool) bool {
	v := www.QueryValue(r, key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		www.PanicBadRequestf("Invalid value for %v: '%v'", key, v)
	}
	return b
}
