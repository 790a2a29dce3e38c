package services

import (
	"github.com/StarfishJ/SceneSound/internal/core/domain"
	"github.com/StarfishJ/SceneSound/internal/textnorm"
)

// styleTable maps a normalised scene label to its music styles. Keys use
// spaces, so Places365 labels such as "night_club" match after normalisation.
var styleTable = map[string][]string{
	// keyword scenes
	"nature":      {"ambient", "acoustic", "folk"},
	"beach":       {"tropical house", "reggae", "chill"},
	"city":        {"electronic", "pop", "hip-hop"},
	"night":       {"deep house", "jazz", "lofi"},
	"party":       {"dance", "pop", "electronic"},
	"calm":        {"classical", "ambient", "piano"},
	"energetic":   {"rock", "electronic", "pop"},
	"romantic":    {"r&b", "soul", "jazz"},
	"melancholic": {"indie", "alternative", "acoustic"},
	"epic":        {"orchestral", "cinematic", "rock"},

	// Places365 scenes
	"forest":        {"ambient", "folk", "nature sounds", "acoustic"},
	"mountain":      {"epic orchestral", "folk rock", "ambient"},
	"desert":        {"world music", "ambient", "psychedelic"},
	"cafe":          {"jazz", "bossa nova", "acoustic"},
	"restaurant":    {"jazz", "lounge", "classical"},
	"concert hall":  {"classical", "live music", "orchestral"},
	"bar":           {"blues", "jazz", "rock"},
	"park":          {"acoustic", "folk", "indie"},
	"garden":        {"classical", "ambient", "new age"},
	"library":       {"classical", "ambient", "minimal"},
	"museum":        {"classical", "ambient", "experimental"},
	"art gallery":   {"experimental", "ambient", "electronic"},
	"night club":    {"electronic", "dance", "house"},
	"stadium":       {"rock", "pop", "electronic"},
	"gym":           {"electronic", "rock", "hip hop"},
	"shopping mall": {"pop", "electronic", "ambient"},
	"airport":       {"ambient", "electronic", "minimal"},
	"train station": {"ambient", "minimal", "electronic"},

	domain.GeneralScene: {"pop", "rock", "electronic"},
}

// StylesForScene returns the styles for one scene label: an exact table
// match, else the styles of the keyword scene the label resolves to, else the
// general styles.
func StylesForScene(scene string) []string {
	label := textnorm.Label(scene)
	if styles, ok := styleTable[label]; ok {
		return styles
	}
	if alias := resolveAlias(label); alias != "" {
		return styleTable[alias]
	}
	return styleTable[domain.GeneralScene]
}

// MapStyles turns ordered observations into de-duplicated style tags. Each
// style appears once, attributed to the first observation that produced it,
// and tags keep first-insertion order. Empty input yields an empty result.
func MapStyles(observations []domain.SceneObservation) []domain.StyleTag {
	tags := make([]domain.StyleTag, 0, len(observations)*3)
	seen := make(map[string]struct{})
	for _, obs := range observations {
		for _, style := range StylesForScene(obs.Scene) {
			if _, dup := seen[style]; dup {
				continue
			}
			seen[style] = struct{}{}
			tags = append(tags, domain.StyleTag{Name: style, Scene: obs.Scene})
		}
	}
	return tags
}
