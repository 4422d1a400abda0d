package image

import (
	"context"
	"errors"
	"strings"

	"github.com/kinship-crm/kinship/pkg/ai"
	"github.com/kinship-crm/kinship/pkg/loader"
)

// ErrNotImage is returned for sources whose MIME type is not an image.
var ErrNotImage = errors.New("source is not an image")

// Describer generates text descriptions of images using an AI vision model.
type Describer struct {
	aiClient ai.Client
	loader   loader.Loader
}

// NewDescriber creates a Describer reading images through l.
func NewDescriber(aiClient ai.Client, l loader.Loader) *Describer {
	return &Describer{
		aiClient: aiClient,
		loader:   l,
	}
}

// Describe loads src and returns the model's description of it.
func (d *Describer) Describe(ctx context.Context, src loader.Source) (string, error) {
	b64, err := d.loader.Base64(ctx, src)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(b64.FileType, "image/") {
		return "", ErrNotImage
	}

	text, err := d.aiClient.GenerateImageDescription(ctx, ai.PhotoDescriptionPrompt, b64)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
