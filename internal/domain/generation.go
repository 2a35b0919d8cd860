package domain

import (
	"fmt"
	"strings"
)

// AspectRatio is one of the fixed output ratios accepted by the upstream model.
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectWide      AspectRatio = "16:9"
	AspectTall      AspectRatio = "9:16"
	AspectLandscape AspectRatio = "4:3"
	AspectPortrait  AspectRatio = "3:4"
)

// AspectRatios lists the supported ratios in display order.
var AspectRatios = []AspectRatio{AspectSquare, AspectWide, AspectTall, AspectLandscape, AspectPortrait}

// OutputFormat selects the encoding of the generated image.
type OutputFormat string

const (
	FormatJPEG OutputFormat = "jpeg"
	FormatPNG  OutputFormat = "png"
)

const (
	// DefaultAspectRatio is applied when the request omits aspect_ratio.
	DefaultAspectRatio = AspectSquare
	// DefaultOutputFormat is applied when the request omits output_format.
	DefaultOutputFormat = FormatJPEG
	// DefaultSafetyTolerance is the provider's middle-of-the-road moderation level.
	DefaultSafetyTolerance = 2
	// MinSafetyTolerance is the strictest moderation level.
	MinSafetyTolerance = 0
	// MaxSafetyTolerance is the most permissive moderation level.
	MaxSafetyTolerance = 6
)

// GenerationRequest is the payload accepted by the submit proxy. Field names
// on the wire match the upstream API.
type GenerationRequest struct {
	Prompt           string       `json:"prompt"`
	InputImage       string       `json:"input_image,omitempty"`
	Seed             *int         `json:"seed,omitempty"`
	AspectRatio      AspectRatio  `json:"aspect_ratio,omitempty"`
	OutputFormat     OutputFormat `json:"output_format,omitempty"`
	PromptUpsampling bool         `json:"prompt_upsampling"`
	SafetyTolerance  *int         `json:"safety_tolerance,omitempty"`
}

// Normalize trims input and fills in defaults for omitted options.
func (r *GenerationRequest) Normalize() {
	if r == nil {
		return
	}
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.InputImage = StripDataURL(strings.TrimSpace(r.InputImage))
	r.AspectRatio = AspectRatio(strings.TrimSpace(string(r.AspectRatio)))
	if r.AspectRatio == "" {
		r.AspectRatio = DefaultAspectRatio
	}
	r.OutputFormat = OutputFormat(strings.ToLower(strings.TrimSpace(string(r.OutputFormat))))
	if r.OutputFormat == "" {
		r.OutputFormat = DefaultOutputFormat
	}
	if r.SafetyTolerance == nil {
		tolerance := DefaultSafetyTolerance
		r.SafetyTolerance = &tolerance
	}
}

// Validate reports the first field that violates the request contract.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("prompt is required")
	}
	if !r.AspectRatio.Valid() {
		return fmt.Errorf("aspect_ratio must be one of 1:1, 16:9, 9:16, 4:3, 3:4")
	}
	if r.OutputFormat != FormatJPEG && r.OutputFormat != FormatPNG {
		return fmt.Errorf("output_format must be jpeg or png")
	}
	if r.SafetyTolerance != nil && (*r.SafetyTolerance < MinSafetyTolerance || *r.SafetyTolerance > MaxSafetyTolerance) {
		return fmt.Errorf("safety_tolerance must be between %d and %d", MinSafetyTolerance, MaxSafetyTolerance)
	}
	if r.Seed != nil && *r.Seed < 0 {
		return fmt.Errorf("seed must not be negative")
	}
	return nil
}

// Summary renders the request for log output with the image payload elided.
func (r GenerationRequest) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "prompt=%q aspect_ratio=%s output_format=%s", r.Prompt, r.AspectRatio, r.OutputFormat)
	if r.Seed != nil {
		fmt.Fprintf(&b, " seed=%d", *r.Seed)
	} else {
		b.WriteString(" seed=random")
	}
	fmt.Fprintf(&b, " prompt_upsampling=%t", r.PromptUpsampling)
	if r.SafetyTolerance != nil {
		fmt.Fprintf(&b, " safety_tolerance=%d", *r.SafetyTolerance)
	}
	if r.InputImage != "" {
		fmt.Fprintf(&b, " input_image=<%d base64 chars>", len(r.InputImage))
	}
	return b.String()
}

// Valid reports whether the ratio is one of AspectRatios.
func (a AspectRatio) Valid() bool {
	for _, candidate := range AspectRatios {
		if a == candidate {
			return true
		}
	}
	return false
}

// StripDataURL removes a "data:<mime>;base64," prefix, leaving the raw payload.
func StripDataURL(s string) string {
	if !strings.HasPrefix(strings.ToLower(s), "data:") {
		return s
	}
	if idx := strings.IndexByte(s, ','); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
