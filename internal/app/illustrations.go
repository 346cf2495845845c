package app

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"littlefidan/internal/util"
)

// ErrIllustrationsDisabled is returned when no image generation backend is
// configured.
var ErrIllustrationsDisabled = fmt.Errorf("illustration generation is not configured")

// Illustration is a generated draft asset parked in storage for the admin
// to review before attaching it anywhere.
type Illustration struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// GenerateIllustration produces a PNG from the prompt, stores it under the
// illustrations/ prefix and returns a preview URL.
func (a *App) GenerateIllustration(ctx context.Context, prompt, size string) (Illustration, error) {
	if a.images == nil {
		return Illustration{}, ErrIllustrationsDisabled
	}
	if strings.TrimSpace(prompt) == "" {
		return Illustration{}, fmt.Errorf("%w: prompt is required", ErrValidation)
	}
	img, err := a.images.Generate(ctx, prompt, size)
	if err != nil {
		return Illustration{}, fmt.Errorf("generate illustration: %w", err)
	}
	key := path.Join("illustrations", a.now().UTC().Format("2006/01"), util.NewID()+".png")
	if err := a.objects.Put(ctx, key, bytes.NewReader(img), int64(len(img)), "image/png"); err != nil {
		return Illustration{}, fmt.Errorf("store illustration: %w", err)
	}
	url, err := a.objects.PresignGet(ctx, key, 15*time.Minute)
	if err != nil {
		return Illustration{}, fmt.Errorf("presign illustration: %w", err)
	}
	return Illustration{Key: key, URL: url}, nil
}
