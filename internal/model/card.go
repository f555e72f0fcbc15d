package model

// ConceptCard is a cached term or symbol definition used for stable,
// repeatable explanations of key concepts.
type ConceptCard struct {
	Key     string           `json:"key"`
	Title   string           `json:"title"`
	Short   string           `json:"short,omitempty"`
	Details []CardDetailItem `json:"details,omitempty"`
	SeeAlso []string         `json:"see_also,omitempty"`
}

// CardDetailItem is one labeled line of a concept card.
type CardDetailItem struct {
	Label string `json:"label"`
	Value string `json:"value"`
}
