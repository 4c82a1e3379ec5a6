package generation

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"github.com/sirupsen/logrus"
)

// TextRequest identifies what to write and who it is for. OwnerID, TopicID
// and ItemID only label activity entries.
type TextRequest struct {
	OwnerID string
	TopicID *string
	ItemID  *string
	Topic   string
	Angle   string
	Tag     post.ContentTag
}

type ImageRequest struct {
	OwnerID string
	TopicID *string
	ItemID  *string
	Topic   string
}

type GeneratorConfig struct {
	// MediaProbability is the chance that media is attempted for a topic that includes media.
	MediaProbability float64
	CallTimeout      time.Duration
}

// SignalDetector decides whether a topic currently warrants critical framing.
type SignalDetector interface {
	DetectCritical(ctx context.Context, topic string) (bool, error)
}

// Generator asks the registry for providers in priority order and fails
// over to the next one on error until the pool is exhausted.
type Generator struct {
	registry *Registry
	recorder activity.Recorder
	detector SignalDetector

	mu     sync.Mutex
	cfg    GeneratorConfig
	random func() float64
}

type GeneratorOption func(*Generator)

// WithRandom replaces the source used for the media decision.
func WithRandom(fn func() float64) GeneratorOption {
	return func(g *Generator) { g.random = fn }
}

func WithSignalDetector(d SignalDetector) GeneratorOption {
	return func(g *Generator) { g.detector = d }
}

func NewGenerator(registry *Registry, recorder activity.Recorder, cfg GeneratorConfig, opts ...GeneratorOption) *Generator {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	g := &Generator{
		registry: registry,
		recorder: recorder,
		cfg:      cfg,
		random:   rand.Float64,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateText returns sanitized text, or false once every text provider has
// failed for this request.
func (g *Generator) GenerateText(ctx context.Context, req TextRequest) (string, bool) {
	prompt := TextPrompt(req.Topic, req.Angle, req.Tag)
	out, err := g.run(WithOwner(ctx, req.OwnerID), KindText, prompt, Sanitize)
	if err != nil {
		g.abort(ctx, KindText, req.OwnerID, req.TopicID, req.ItemID, req.Topic, err)
		return "", false
	}
	return out, true
}

// GenerateImage returns a media reference. Failure is never fatal for the
// caller: the post goes out text-only.
func (g *Generator) GenerateImage(ctx context.Context, req ImageRequest) (string, bool) {
	out, err := g.run(WithOwner(ctx, req.OwnerID), KindImage, ImagePrompt(req.Topic), strings.TrimSpace)
	if err != nil {
		g.abort(ctx, KindImage, req.OwnerID, req.TopicID, req.ItemID, req.Topic, err)
		return "", false
	}
	return out, true
}

// ShouldAttemptMedia rolls the media dice for a topic.
func (g *Generator) ShouldAttemptMedia(includeMedia bool) bool {
	if !includeMedia {
		return false
	}
	g.mu.Lock()
	p := g.cfg.MediaProbability
	roll := g.random()
	g.mu.Unlock()
	return roll < p
}

func (g *Generator) SetMediaProbability(p float64) {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	g.mu.Lock()
	g.cfg.MediaProbability = p
	g.mu.Unlock()
}

// DetectCritical returns false when no detector is configured or it fails.
func (g *Generator) DetectCritical(ctx context.Context, topic string) bool {
	if g.detector == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()
	critical, err := g.detector.DetectCritical(ctx, topic)
	if err != nil {
		logrus.WithError(err).WithField("topic", topic).Warn("[GENERATOR] Critical signal check failed")
		return false
	}
	return critical
}

func (g *Generator) run(ctx context.Context, kind Kind, prompt string, clean func(string) string) (string, error) {
	excluded := make(map[string]bool)
	attempts := g.registry.PoolSize(kind)

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p, ok := g.registry.Select(ctx, kind, excluded)
		if !ok {
			break
		}

		out, err := g.call(ctx, p, prompt)
		if err == nil {
			out = clean(out)
			if out == "" {
				err = ErrEmptyOutput
			}
		}
		if err != nil {
			lastErr = err
			excluded[p.Name()] = true
			g.registry.RecordFailure(p.Name(), err)
			continue
		}

		g.registry.RecordSuccess(ctx, p.Name())
		logrus.WithFields(logrus.Fields{
			"provider": p.Name(),
			"kind":     kind,
			"length":   len(out),
		}).Debug("[GENERATOR] Generation succeeded")
		return out, nil
	}

	if lastErr == nil {
		return "", ErrPoolExhausted
	}
	return "", fmt.Errorf("%w: %v", ErrPoolExhausted, lastErr)
}

func (g *Generator) call(ctx context.Context, p Provider, prompt string) (out string, err error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider %s panicked: %v", p.Name(), r)
		}
	}()
	return p.Generate(ctx, prompt)
}

func (g *Generator) abort(ctx context.Context, kind Kind, ownerID string, topicID, itemID *string, topic string, cause error) {
	logrus.WithFields(logrus.Fields{
		"kind":     kind,
		"owner_id": ownerID,
		"topic":    topic,
	}).WithError(cause).Warn("[GENERATOR] Generation aborted")

	if g.recorder == nil {
		return
	}
	g.recorder.Record(ctx, activity.Entry{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		TopicID:   topicID,
		ItemID:    itemID,
		Action:    activity.ActionGenerationAborted,
		Message:   fmt.Sprintf("%s generation for %q aborted: %v", kind, topic, cause),
		Source:    activity.SourceGenerator,
		Retain:    true,
		CreatedAt: time.Now().UTC(),
	})
}
