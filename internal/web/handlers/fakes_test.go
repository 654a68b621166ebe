package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"

	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/imageutil"
)

// fakeDecoder decodes every upload except "bad" into a sharp 200x200 image
// that remembers its bytes.
type fakeDecoder struct{}

func (fakeDecoder) Decode(data []byte) (*imageutil.Image, bool) {
	if string(data) == "bad" {
		return nil, false
	}
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for y := range 200 {
		for x := range 200 {
			if (x/3+y/3)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return &imageutil.Image{Raw: data, Pixels: img}, true
}

// fakeFaces finds one face per image whose embedding is looked up by the
// image bytes.
type fakeFaces struct {
	embeddings map[string][]float32
	detectErr  error
}

func (f *fakeFaces) Detect(_ context.Context, img *imageutil.Image) ([]facematch.DetectedFace, error) {
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	if _, ok := f.embeddings[string(img.Raw)]; !ok {
		return nil, nil
	}
	conf := 0.95
	return []facematch.DetectedFace{{
		BBox:       &facematch.BBox{X1: 20, Y1: 20, X2: 140, Y2: 140},
		Confidence: &conf,
		Landmarks:  json.RawMessage(fmt.Sprintf("%q", img.Raw)),
	}}, nil
}

func (f *fakeFaces) Embed(_ context.Context, _ *imageutil.Image, landmarks json.RawMessage) ([]float32, error) {
	var key string
	if err := json.Unmarshal(landmarks, &key); err != nil {
		return nil, err
	}
	return f.embeddings[key], nil
}

func newFakeFaces() *fakeFaces {
	return &fakeFaces{embeddings: map[string][]float32{
		"alice":  {1, 0, 0},
		"alice2": {0.9, 0.1, 0},
		"bob":    {0, 1, 0},
		"carol":  {0, 0, 1},
		"noise":  {0.5, 0.5, -0.7},
	}}
}
