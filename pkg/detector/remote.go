package detector

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/anonymiser/pkg/imageio"
	"github.com/cyclopcam/anonymiser/pkg/nn"
	"github.com/cyclopcam/anonymiser/pkg/requests"
	"github.com/cyclopcam/logs"
)

// Remote is a client of a detection provider, which serves GET /info and POST /detect
type Remote struct {
	log     logs.Log
	baseURL string
	client  *http.Client
}

// NewRemote creates a client for the provider at baseURL (eg "http://127.0.0.1:8000").
// If client is nil, a client with a 60 second timeout is used.
func NewRemote(log logs.Log, baseURL string, client *http.Client) *Remote {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Remote{
		log:     log,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

func (r *Remote) BaseURL() string {
	return r.baseURL
}

// Info fetches the provider's list of detectors
func (r *Remote) Info(ctx context.Context) (*Info, error) {
	info, err := requests.RequestJSON[Info](ctx, r.client, "GET", r.baseURL+"/info", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetectorUnavailable, err)
	}
	if len(info.Descriptions) != len(info.Choices) || len(info.Classes) != len(info.Choices) {
		return nil, fmt.Errorf("%w: provider info has %v choices, %v descriptions, and %v class lists", ErrDetectorUnavailable, len(info.Choices), len(info.Descriptions), len(info.Classes))
	}
	return info, nil
}

// Detect sends img to the provider as a base64 JPEG, and runs model 'modelIndex' over it
func (r *Remote) Detect(ctx context.Context, img *cimg.Image, modelIndex int) (*nn.Prediction, error) {
	jpg, err := imageio.EncodeJPEG(imageio.ToRGB(img), imageio.DefaultJPEGQuality)
	if err != nil {
		return nil, err
	}
	req := DetectRequest{
		ImageStr:   base64.StdEncoding.EncodeToString(jpg),
		ModelIndex: modelIndex,
	}
	resp, err := requests.RequestJSON[DetectResponse](ctx, r.client, "POST", r.baseURL+"/detect", &req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetectorUnavailable, err)
	}
	if resp.Predictions == nil {
		return nil, fmt.Errorf("%w: provider response has no predictions", ErrDetectorUnavailable)
	}
	return resp.Predictions, nil
}

// RemoteDetector is one of the detectors of a provider
type RemoteDetector struct {
	remote     *Remote
	index      int
	classNames []string
}

func (d *RemoteDetector) Detect(ctx context.Context, img *cimg.Image, params Params) (*nn.Prediction, error) {
	// The provider protocol has no place for parameters
	return d.remote.Detect(ctx, img, d.index)
}

func (d *RemoteDetector) ClassNames() []string {
	return d.classNames
}

// NewRemoteRegistry populates a registry from the provider's /info
func NewRemoteRegistry(ctx context.Context, log logs.Log, remote *Remote) (*Registry, error) {
	info, err := remote.Info(ctx)
	if err != nil {
		return nil, err
	}
	reg := NewRegistry(log)
	for i, name := range info.Choices {
		reg.Add(name, info.Descriptions[i], &RemoteDetector{
			remote:     remote,
			index:      i,
			classNames: info.Classes[i],
		})
	}
	log.Infof("Detection provider %v has %v detectors: %v", remote.baseURL, reg.Len(), strings.Join(info.Choices, ", "))
	return reg, nil
}
