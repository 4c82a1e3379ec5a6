package providers

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/re178/mega-facebook-autoposter/core/config"
	"github.com/re178/mega-facebook-autoposter/generation"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Vendors understood in a pool file.
const (
	VendorOpenAI = "openai"
	VendorGemini = "gemini"
	VendorClaude = "claude"
)

// Spec describes one provider of a pool file entry.
type Spec struct {
	Name       string `yaml:"name"`
	Vendor     string `yaml:"vendor"`
	Model      string `yaml:"model"`
	DailyLimit int    `yaml:"daily_limit"`
	// APIKeyEnv overrides the vendor's default API key variable.
	APIKeyEnv string `yaml:"api_key_env"`
	Disabled  bool   `yaml:"disabled"`
}

// PoolFile is the on-disk pool definition. List order is priority order.
type PoolFile struct {
	Text     []Spec `yaml:"text"`
	Image    []Spec `yaml:"image"`
	Detector *Spec  `yaml:"critical_detector"`
}

// LoadPoolFile reads path. A missing file is not an error: the returned
// bool is false and the caller falls back to DefaultPool.
func LoadPoolFile(path string) (*PoolFile, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read provider pool file: %w", err)
	}
	pool, err := ParsePool(data)
	if err != nil {
		return nil, false, err
	}
	return pool, true, nil
}

func ParsePool(data []byte) (*PoolFile, error) {
	var pool PoolFile
	if err := yaml.Unmarshal(data, &pool); err != nil {
		return nil, fmt.Errorf("failed to parse provider pool file: %w", err)
	}
	seen := make(map[string]bool)
	for _, s := range append(append([]Spec{}, pool.Text...), pool.Image...) {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("provider entry without name")
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate provider name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return &pool, nil
}

// DefaultPool builds a pool from whichever API keys are configured.
func DefaultPool(keys config.APIKeysConfig) *PoolFile {
	pool := &PoolFile{}
	if keys.OpenAI != "" {
		pool.Text = append(pool.Text, Spec{Name: "openai-text", Vendor: VendorOpenAI, DailyLimit: 500})
		pool.Image = append(pool.Image, Spec{Name: "openai-image", Vendor: VendorOpenAI, DailyLimit: 50})
		pool.Detector = &Spec{Name: "openai-detector", Vendor: VendorOpenAI}
	}
	if keys.Gemini != "" {
		pool.Text = append(pool.Text, Spec{Name: "gemini-text", Vendor: VendorGemini, DailyLimit: 1000})
		pool.Image = append(pool.Image, Spec{Name: "imagen", Vendor: VendorGemini, DailyLimit: 50})
	}
	if keys.Claude != "" {
		pool.Text = append(pool.Text, Spec{Name: "claude-text", Vendor: VendorClaude, DailyLimit: 500})
	}
	return pool
}

// Build registers every entry of pool on reg and returns the critical
// detector, if one is configured. Entries whose key is missing are skipped.
func Build(pool *PoolFile, reg *generation.Registry, keys config.APIKeysConfig, mediaRoot string) (generation.SignalDetector, error) {
	for _, s := range pool.Text {
		p, err := newTextProvider(s, keys)
		if err != nil {
			logrus.WithError(err).Warnf("[PROVIDERS] Skipping text provider %s", s.Name)
			continue
		}
		if err := register(reg, generation.KindText, p, s); err != nil {
			return nil, err
		}
	}
	for _, s := range pool.Image {
		p, err := newImageProvider(s, keys, mediaRoot)
		if err != nil {
			logrus.WithError(err).Warnf("[PROVIDERS] Skipping image provider %s", s.Name)
			continue
		}
		if err := register(reg, generation.KindImage, p, s); err != nil {
			return nil, err
		}
	}

	if pool.Detector == nil {
		return nil, nil
	}
	key := apiKeyFor(*pool.Detector, keys)
	if pool.Detector.Vendor != VendorOpenAI || key == "" {
		logrus.Warn("[PROVIDERS] Critical detector needs an OpenAI key, disabled")
		return nil, nil
	}
	return NewCriticalDetector(key, pool.Detector.Model), nil
}

func register(reg *generation.Registry, kind generation.Kind, p generation.Provider, s Spec) error {
	if err := reg.Register(kind, p); err != nil {
		return err
	}
	if s.Disabled {
		return reg.SetEnabled(s.Name, false)
	}
	return nil
}

func newTextProvider(s Spec, keys config.APIKeysConfig) (generation.Provider, error) {
	key := apiKeyFor(s, keys)
	if key == "" {
		return nil, fmt.Errorf("no API key for vendor %q", s.Vendor)
	}
	switch s.Vendor {
	case VendorOpenAI:
		return NewOpenAIText(s.Name, key, s.Model, s.DailyLimit), nil
	case VendorGemini:
		return NewGeminiText(s.Name, key, s.Model, s.DailyLimit), nil
	case VendorClaude:
		return NewClaudeText(s.Name, key, s.Model, s.DailyLimit), nil
	}
	return nil, fmt.Errorf("unsupported text vendor %q", s.Vendor)
}

func newImageProvider(s Spec, keys config.APIKeysConfig, mediaRoot string) (generation.Provider, error) {
	key := apiKeyFor(s, keys)
	if key == "" {
		return nil, fmt.Errorf("no API key for vendor %q", s.Vendor)
	}
	switch s.Vendor {
	case VendorOpenAI:
		return NewOpenAIImage(s.Name, key, s.Model, s.DailyLimit), nil
	case VendorGemini:
		return NewImagenImage(s.Name, key, s.Model, s.DailyLimit, mediaRoot), nil
	}
	return nil, fmt.Errorf("unsupported image vendor %q", s.Vendor)
}

func apiKeyFor(s Spec, keys config.APIKeysConfig) string {
	if s.APIKeyEnv != "" {
		return os.Getenv(s.APIKeyEnv)
	}
	switch s.Vendor {
	case VendorOpenAI:
		return keys.OpenAI
	case VendorGemini:
		return keys.Gemini
	case VendorClaude:
		return keys.Claude
	}
	return ""
}
