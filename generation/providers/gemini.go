package providers

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/re178/mega-facebook-autoposter/generation"
	"github.com/re178/mega-facebook-autoposter/pkg/utils"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
	"google.golang.org/genai"
)

const (
	DefaultGeminiTextModel  = "gemini-2.0-flash"
	DefaultGeminiImageModel = "imagen-3.0-generate-002"
)

// GeminiText generates post text with the Gemini API.
type GeminiText struct {
	name   string
	model  string
	limit  int
	apiKey string
}

func NewGeminiText(name, apiKey, model string, dailyLimit int) *GeminiText {
	if model == "" {
		model = DefaultGeminiTextModel
	}
	return &GeminiText{name: name, model: model, limit: dailyLimit, apiKey: apiKey}
}

func (p *GeminiText) Name() string    { return p.name }
func (p *GeminiText) DailyLimit() int { return p.limit }

func (p *GeminiText) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, ""),
		Temperature:       genai.Ptr[float32](0.9),
	}
	result, err := client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", err
	}
	return result.Text(), nil
}

// ImagenImage generates an image with Imagen and stores it as a JPEG under
// the page's media directory. The returned reference is a file:// path.
type ImagenImage struct {
	name      string
	model     string
	limit     int
	apiKey    string
	mediaRoot string
}

func NewImagenImage(name, apiKey, model string, dailyLimit int, mediaRoot string) *ImagenImage {
	if model == "" {
		model = DefaultGeminiImageModel
	}
	return &ImagenImage{name: name, model: model, limit: dailyLimit, apiKey: apiKey, mediaRoot: mediaRoot}
}

func (p *ImagenImage) Name() string    { return p.name }
func (p *ImagenImage) DailyLimit() int { return p.limit }

func (p *ImagenImage) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateImages(ctx, p.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return "", err
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return "", fmt.Errorf("no image returned by imagen")
	}

	dir, err := utils.GetOwnerMediaPath(p.mediaRoot, generation.OwnerFromContext(ctx))
	if err != nil {
		return "", err
	}
	path, err := saveJPEG(resp.GeneratedImages[0].Image.ImageBytes, dir)
	if err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{"provider": p.name, "path": path}).Debug("[IMAGEN] Image stored")
	return utils.FileRef(path), nil
}

// saveJPEG decodes PNG, JPEG or WebP bytes and re-encodes them as JPEG,
// which every publish endpoint accepts.
func saveJPEG(data []byte, dir string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image payload")
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Dx() > 2048 {
		img = imaging.Resize(img, 2048, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("gen_%s.jpg", uuid.NewString()))
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return path, nil
}
