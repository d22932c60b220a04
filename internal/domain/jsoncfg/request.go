package jsoncfg

import (
	"fmt"
	"strings"

	"studio/internal/domain"
)

var allowedAspectRatios = map[string]struct{}{
	"1:1":  {},
	"4:5":  {},
	"16:9": {},
	"9:16": {},
}

var allowedResolutions = map[string]struct{}{
	"720p":  {},
	"1080p": {},
}

const (
	// DefaultVideoModel is used when a video request omits the model.
	DefaultVideoModel = "veo-3"
	// DefaultImageModel is used when an image request omits the model.
	DefaultImageModel = "gpt-image-1"
	// DefaultVideoDuration is the clip length in seconds when none is given.
	DefaultVideoDuration = 8
	// MaxVideoDuration caps clip length accepted by the generation backend.
	MaxVideoDuration = 20
	// DefaultResolution applies to video requests without a resolution.
	DefaultResolution = "720p"
	// DefaultVideoAspectRatio applies to video requests without an aspect ratio.
	DefaultVideoAspectRatio = "16:9"
	// DefaultImageAspectRatio applies to image requests without an aspect ratio.
	DefaultImageAspectRatio = "1:1"
	// DefaultLocale is applied when no locale preference is provided.
	DefaultLocale = "en"
)

// Normalize fills defaults on a generation request. Explicit values are kept.
func Normalize(req *domain.GenerationRequest, preferredLocale string) {
	if req == nil {
		return
	}
	if req.Kind == "" {
		req.Kind = domain.JobKindVideo
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Model = strings.TrimSpace(req.Model)
	req.Resolution = strings.ToLower(strings.TrimSpace(req.Resolution))
	req.AspectRatio = strings.TrimSpace(req.AspectRatio)
	switch req.Kind {
	case domain.JobKindVideo:
		if req.Model == "" {
			req.Model = DefaultVideoModel
		}
		if req.Duration == 0 {
			req.Duration = DefaultVideoDuration
		}
		if req.Resolution == "" {
			req.Resolution = DefaultResolution
		}
		if req.AspectRatio == "" {
			req.AspectRatio = DefaultVideoAspectRatio
		}
	case domain.JobKindImage:
		if req.Model == "" {
			req.Model = DefaultImageModel
		}
		if req.AspectRatio == "" {
			req.AspectRatio = DefaultImageAspectRatio
		}
	}
	if req.Locale == "" {
		if preferredLocale != "" {
			req.Locale = preferredLocale
		} else {
			req.Locale = DefaultLocale
		}
	}
}

// Validate ensures the request satisfies the submit contract.
func Validate(req domain.GenerationRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", domain.ErrInvalidInput)
	}
	if req.Kind != domain.JobKindVideo && req.Kind != domain.JobKindImage {
		return fmt.Errorf("%w: unsupported kind %q", domain.ErrInvalidInput, req.Kind)
	}
	if req.Kind == domain.JobKindVideo {
		if req.Duration <= 0 || req.Duration > MaxVideoDuration {
			return fmt.Errorf("%w: duration must be between 1 and %d seconds", domain.ErrInvalidInput, MaxVideoDuration)
		}
		if _, ok := allowedResolutions[req.Resolution]; !ok {
			return fmt.Errorf("%w: resolution must be 720p or 1080p", domain.ErrInvalidInput)
		}
	}
	if _, ok := allowedAspectRatios[req.AspectRatio]; !ok {
		return fmt.Errorf("%w: aspect_ratio must be one of 1:1, 4:5, 16:9, 9:16", domain.ErrInvalidInput)
	}
	return nil
}
