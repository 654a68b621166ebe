// Package quality filters detected faces before they are embedded.
package quality

import (
	"image"

	"github.com/kozaktomas/class-attendance/internal/facematch"
)

// Reason is the outcome of the quality gate for one face.
type Reason string

const (
	ReasonOK        Reason = "ok"
	ReasonNoBBox    Reason = "nobbox"
	ReasonLowConf   Reason = "lowconf"
	ReasonSmall     Reason = "small"
	ReasonEmptyCrop Reason = "empty_crop"
	ReasonBlur      Reason = "blur"
)

// Thresholds configures the gate. JSON keys match the quality_thresholds
// block of the attendance result.
type Thresholds struct {
	MinConf     float64 `json:"min_conf"`
	MinFaceSize int     `json:"min_face"`
	MinBlur     float64 `json:"min_blur"`
}

// DefaultThresholds returns the thresholds used when nothing is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{MinConf: 0.6, MinFaceSize: 40, MinBlur: 60.0}
}

// Measurements are the values the gate computed before deciding.
// Fields the gate never reached stay zero.
type Measurements struct {
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	BlurScore  float64  `json:"blur_score"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Verdict is the result of Evaluate.
type Verdict struct {
	Accepted     bool          `json:"accepted"`
	Reason       Reason        `json:"reason"`
	Measurements *Measurements `json:"measurements,omitempty"`
}

// Evaluate runs the quality checks for one detected face. The first failing
// check decides the verdict:
//
//	lowconf -> nobbox (accept) -> small -> empty_crop -> blur -> ok
//
// A face without a bounding box is accepted as nobbox and skips the size and
// sharpness checks entirely.
func Evaluate(img image.Image, face facematch.DetectedFace, th Thresholds) Verdict {
	if face.Confidence != nil && *face.Confidence < th.MinConf {
		return Verdict{
			Reason:       ReasonLowConf,
			Measurements: &Measurements{Confidence: face.Confidence},
		}
	}

	if face.BBox == nil {
		return Verdict{Accepted: true, Reason: ReasonNoBBox}
	}

	crop := face.BBox.Clamp(img.Bounds())
	m := &Measurements{Width: crop.Dx(), Height: crop.Dy(), Confidence: face.Confidence}

	if m.Width < th.MinFaceSize || m.Height < th.MinFaceSize {
		return Verdict{Reason: ReasonSmall, Measurements: m}
	}
	if m.Width <= 0 || m.Height <= 0 {
		return Verdict{Reason: ReasonEmptyCrop, Measurements: m}
	}

	m.BlurScore = BlurScore(subImage(img, crop))
	if m.BlurScore < th.MinBlur {
		return Verdict{Reason: ReasonBlur, Measurements: m}
	}

	return Verdict{Accepted: true, Reason: ReasonOK, Measurements: m}
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// subImage crops without copying when the image supports it.
func subImage(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	return &cropped{Image: img, rect: r}
}

type cropped struct {
	image.Image
	rect image.Rectangle
}

func (c *cropped) Bounds() image.Rectangle { return c.rect }
