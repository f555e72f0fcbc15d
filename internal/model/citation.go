package model

// Citation is a normalized reference to one retrieved snippet, shown
// alongside an answer. Ordering within a citations list is significant.
type Citation struct {
	ChunkID string `json:"chunk_id"`
	Source  string `json:"source"`
	Excerpt string `json:"excerpt"`
}
