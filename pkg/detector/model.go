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

// ModelRequest is the body of POST {url}/predict on a model server
type ModelRequest struct {
	ImageStr  string  `json:"image_str"` // base64 JPEG, no larger than the model input
	Threshold float32 `json:"threshold"`
}

// ModelResponse holds raw detections, with boxes relative to the image that was sent
type ModelResponse struct {
	Detections []nn.ObjectDetection `json:"detections"`
}

// ModelClient is an nn.ObjectDetector backed by a model server, which runs a single neural
// network on images of at most config.Width x config.Height. Wrap it in an ObjectDetector
// to get tiling, thresholds and instance ids.
type ModelClient struct {
	log     logs.Log
	url     string
	config  nn.ModelConfig
	client  *http.Client
	timeout time.Duration
}

// NewModelClient creates a client of the model server at url.
// If client is nil, a default client is used. Every tile must finish within timeout
// (60 seconds if timeout is zero).
func NewModelClient(log logs.Log, url string, config nn.ModelConfig, client *http.Client, timeout time.Duration) *ModelClient {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ModelClient{
		log:     log,
		url:     strings.TrimSuffix(url, "/"),
		config:  config,
		client:  client,
		timeout: timeout,
	}
}

func (m *ModelClient) Close() {
}

func (m *ModelClient) Config() *nn.ModelConfig {
	return &m.config
}

func (m *ModelClient) DetectObjects(img nn.ImageCrop, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	jpg, err := imageio.EncodeJPEG(cropImage(img), imageio.DefaultJPEGQuality)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	req := ModelRequest{
		ImageStr:  base64.StdEncoding.EncodeToString(jpg),
		Threshold: params.ProbabilityThreshold,
	}
	resp, err := requests.RequestJSON[ModelResponse](ctx, m.client, "POST", m.url+"/predict", &req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetectorUnavailable, err)
	}
	return resp.Detections, nil
}

// Copy an RGB crop out into its own image
func cropImage(c nn.ImageCrop) *cimg.Image {
	out := cimg.NewImage(c.CropWidth, c.CropHeight, cimg.PixelFormatRGB)
	stride := c.Stride()
	rowBytes := c.CropWidth * 3
	for y := 0; y < c.CropHeight; y++ {
		src := (c.CropY+y)*stride + c.CropX*3
		copy(out.Pixels[y*out.Stride:y*out.Stride+rowBytes], c.Pixels[src:src+rowBytes])
	}
	return out
}
