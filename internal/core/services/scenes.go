package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
	"github.com/StarfishJ/SceneSound/internal/core/ports"
	"github.com/StarfishJ/SceneSound/internal/logging"
	"github.com/StarfishJ/SceneSound/internal/textnorm"
)

// TextSceneProbability is the confidence attached to a keyword match.
const TextSceneProbability = 0.9

// minReverseMatch is the shortest token allowed to match as a substring of a
// keyword ("relax" in "relaxing" works both ways, "a" must not match "beach").
const minReverseMatch = 3

type sceneKeywords struct {
	scene    string
	keywords []string
}

// keywordTable is evaluated in order; the order of text observations follows it.
var keywordTable = []sceneKeywords{
	{"nature", []string{"nature", "forest", "mountain", "garden", "tree", "flower", "grass", "park"}},
	{"beach", []string{"beach", "ocean", "sea", "wave", "sand", "sunset", "coast", "tropical"}},
	{"city", []string{"city", "urban", "street", "building", "downtown", "traffic", "modern"}},
	{"night", []string{"night", "dark", "star", "moon", "evening", "midnight"}},
	{"party", []string{"party", "dance", "celebration", "fun", "festival", "club"}},
	{"calm", []string{"calm", "peaceful", "quiet", "relax", "meditation", "zen"}},
	{"energetic", []string{"energetic", "active", "workout", "exercise", "running", "gym"}},
	{"romantic", []string{"romantic", "love", "date", "couple", "wedding"}},
	{"melancholic", []string{"sad", "rain", "lonely", "melancholy", "nostalgic"}},
	{"epic", []string{"epic", "grand", "dramatic", "powerful", "intense"}},
}

// TextScenes infers scenes from free text by keyword matching. The result is
// never empty: text without any match yields the general fallback.
func TextScenes(text string) []domain.SceneObservation {
	tokens := textnorm.Tokens(text)

	var out []domain.SceneObservation
	for _, entry := range keywordTable {
		if matchesAny(tokens, entry.keywords) {
			out = append(out, domain.SceneObservation{
				Scene:       entry.scene,
				Probability: TextSceneProbability,
				Source:      domain.SourceText,
			})
		}
	}
	if len(out) == 0 {
		out = append(out, domain.FallbackObservation(domain.SourceText))
	}
	return out
}

func matchesAny(tokens, keywords []string) bool {
	for _, tok := range tokens {
		for _, kw := range keywords {
			if strings.Contains(tok, kw) {
				return true
			}
			if len(tok) >= minReverseMatch && strings.Contains(kw, tok) {
				return true
			}
		}
	}
	return false
}

// resolveAlias maps a free-form scene label (for example a Places365 class
// such as "coast" or "forest_path") to a keyword-table scene, or "".
func resolveAlias(label string) string {
	tokens := textnorm.Tokens(label)
	for _, entry := range keywordTable {
		if matchesAny(tokens, entry.keywords) {
			return entry.scene
		}
	}
	return ""
}

// SceneClassifier combines the image classifier with the text keyword matcher.
type SceneClassifier struct {
	images            ports.ImageClassifier
	fallbackOnFailure bool
}

// NewSceneClassifier returns a SceneClassifier. images may be nil when only
// text input is supported.
func NewSceneClassifier(images ports.ImageClassifier, fallbackOnFailure bool) *SceneClassifier {
	return &SceneClassifier{images: images, fallbackOnFailure: fallbackOnFailure}
}

// ClassifyInput is the request content to classify.
type ClassifyInput struct {
	Image       []byte
	ContentType string
	Text        string
}

// Classification is the ordered observation list; Degraded is set when the
// image path failed and the result was built without it.
type Classification struct {
	Observations []domain.SceneObservation
	Degraded     bool
}

// Classify returns image observations first, then text observations. The
// result is never empty on success.
func (c *SceneClassifier) Classify(ctx context.Context, in ClassifyInput) (Classification, error) {
	text := strings.TrimSpace(in.Text)
	if len(in.Image) == 0 && text == "" {
		return Classification{}, domain.Validation("services.Classify", http.StatusBadRequest, domain.ErrEmptyRequest)
	}

	var textObs []domain.SceneObservation
	if text != "" {
		textObs = TextScenes(text)
	}

	if len(in.Image) == 0 {
		return Classification{Observations: textObs}, nil
	}

	imageObs, err := c.classifyImage(ctx, in)
	if err == nil {
		return Classification{Observations: append(imageObs, textObs...)}, nil
	}

	if !recoverable(err) || ctx.Err() != nil {
		return Classification{}, fmt.Errorf("service: classify image: %w", err)
	}
	if len(textObs) > 0 {
		logging.Ctx(ctx).Warn().Err(err).Msg("image classification failed, using text scenes only")
		return Classification{Observations: textObs, Degraded: true}, nil
	}
	if c.fallbackOnFailure {
		logging.Ctx(ctx).Warn().Err(err).Msg("image classification failed, using general scene")
		return Classification{Observations: []domain.SceneObservation{domain.FallbackObservation(domain.SourceImage)}, Degraded: true}, nil
	}
	return Classification{}, fmt.Errorf("service: classify image: %w", err)
}

func (c *SceneClassifier) classifyImage(ctx context.Context, in ClassifyInput) ([]domain.SceneObservation, error) {
	if c.images == nil {
		return nil, domain.Permanent("services.Classify", errors.New("no image classifier configured"))
	}
	obs, err := c.images.Classify(ctx, in.Image, in.ContentType, in.Text)
	if err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		return []domain.SceneObservation{domain.FallbackObservation(domain.SourceImage)}, nil
	}
	return obs, nil
}

// recoverable reports whether an image failure may be replaced by fallback
// scenes. Errors the client can act on (bad input, rate limiting) are not.
func recoverable(err error) bool {
	var de *domain.Error
	if !errors.As(err, &de) {
		return false
	}
	switch de.Kind {
	case domain.KindUpstreamTransient:
		return true
	case domain.KindUpstreamPermanent:
		return de.Status == http.StatusBadGateway
	default:
		return false
	}
}
