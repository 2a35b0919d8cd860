package domain

import (
	"strings"
	"testing"
)

func TestGenerationRequestNormalizeDefaults(t *testing.T) {
	r := &GenerationRequest{Prompt: "  a red fox  "}
	r.Normalize()

	if r.Prompt != "a red fox" {
		t.Fatalf("Prompt = %q, want trimmed", r.Prompt)
	}
	if r.AspectRatio != DefaultAspectRatio {
		t.Fatalf("AspectRatio = %q, want %q", r.AspectRatio, DefaultAspectRatio)
	}
	if r.OutputFormat != DefaultOutputFormat {
		t.Fatalf("OutputFormat = %q, want %q", r.OutputFormat, DefaultOutputFormat)
	}
	if r.SafetyTolerance == nil || *r.SafetyTolerance != DefaultSafetyTolerance {
		t.Fatalf("SafetyTolerance = %v, want %d", r.SafetyTolerance, DefaultSafetyTolerance)
	}
	if r.Seed != nil {
		t.Fatalf("Seed should stay unset, got %d", *r.Seed)
	}
}

func TestGenerationRequestNormalizeKeepsExplicitZeroTolerance(t *testing.T) {
	zero := 0
	r := &GenerationRequest{Prompt: "x", SafetyTolerance: &zero, OutputFormat: "PNG"}
	r.Normalize()

	if *r.SafetyTolerance != 0 {
		t.Fatalf("SafetyTolerance = %d, want 0", *r.SafetyTolerance)
	}
	if r.OutputFormat != FormatPNG {
		t.Fatalf("OutputFormat = %q, want png", r.OutputFormat)
	}
}

func TestGenerationRequestNormalizeStripsDataURL(t *testing.T) {
	r := &GenerationRequest{Prompt: "x", InputImage: "data:image/png;base64,QUJD"}
	r.Normalize()
	if r.InputImage != "QUJD" {
		t.Fatalf("InputImage = %q, want QUJD", r.InputImage)
	}
}

func TestGenerationRequestValidate(t *testing.T) {
	seven := 7
	negative := -1
	tests := []struct {
		name    string
		req     GenerationRequest
		wantErr string
	}{
		{name: "valid", req: GenerationRequest{Prompt: "cat", AspectRatio: "16:9", OutputFormat: FormatPNG}},
		{name: "empty prompt", req: GenerationRequest{Prompt: "  ", AspectRatio: "1:1", OutputFormat: FormatJPEG}, wantErr: "prompt"},
		{name: "bad ratio", req: GenerationRequest{Prompt: "cat", AspectRatio: "2:1", OutputFormat: FormatJPEG}, wantErr: "aspect_ratio"},
		{name: "bad format", req: GenerationRequest{Prompt: "cat", AspectRatio: "1:1", OutputFormat: "gif"}, wantErr: "output_format"},
		{name: "tolerance too high", req: GenerationRequest{Prompt: "cat", AspectRatio: "1:1", OutputFormat: FormatJPEG, SafetyTolerance: &seven}, wantErr: "safety_tolerance"},
		{name: "negative seed", req: GenerationRequest{Prompt: "cat", AspectRatio: "1:1", OutputFormat: FormatJPEG, Seed: &negative}, wantErr: "seed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tc.wantErr)
			}
		})
	}
}

func TestGenerationRequestSummaryElidesImage(t *testing.T) {
	seed := 42
	r := GenerationRequest{Prompt: "cat", Seed: &seed, AspectRatio: "1:1", OutputFormat: FormatJPEG, InputImage: strings.Repeat("A", 4096)}
	summary := r.Summary()
	if strings.Contains(summary, "AAAA") {
		t.Fatalf("summary leaked image payload: %s", summary)
	}
	if !strings.Contains(summary, "seed=42") || !strings.Contains(summary, "<4096 base64 chars>") {
		t.Fatalf("unexpected summary: %s", summary)
	}
}
