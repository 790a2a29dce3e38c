package domain

// Source identifies which input produced a SceneObservation.
type Source string

const (
	SourceImage Source = "image"
	SourceText  Source = "text"
)

// GeneralScene is the fallback scene used when nothing more specific is known.
const GeneralScene = "general"

// FallbackProbability is the confidence attached to a GeneralScene fallback.
const FallbackProbability = 0.8

// SceneObservation is one scene label inferred from the request input.
type SceneObservation struct {
	Scene       string  `json:"scene"`
	Probability float64 `json:"probability"`
	Source      Source  `json:"source"`
}

// FallbackObservation returns the general scene for the given source.
func FallbackObservation(src Source) SceneObservation {
	return SceneObservation{Scene: GeneralScene, Probability: FallbackProbability, Source: src}
}

// StyleTag is a genre or mood keyword used to query the catalog.
// Scene is the label of the observation the tag was derived from.
type StyleTag struct {
	Name  string `json:"name"`
	Scene string `json:"scene"`
}

// StyleNames flattens tags to their names, preserving order.
func StyleNames(tags []StyleTag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}

// SceneLabels flattens observations to their scene labels, preserving order.
func SceneLabels(obs []SceneObservation) []string {
	labels := make([]string, len(obs))
	for i, o := range obs {
		labels[i] = o.Scene
	}
	return labels
}
