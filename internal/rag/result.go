// Package rag provides the retrieval collaborators (Wikipedia search,
// knowledge-base vector search, concept-card lookup) and citation
// normalization for retrieved snippets.
package rag

// Snippet is one retrieved text candidate before citation normalization.
type Snippet struct {
	Text    string
	Source  string
	ChunkID string
	ID      string
}

// RetrieveResult is the output of a retrieval collaborator: text to splice
// into the prompt's reference block plus the snippets behind it.
type RetrieveResult struct {
	ReferenceText string
	Snippets      []Snippet
}

// Empty reports whether the result carries no usable reference material.
func (r RetrieveResult) Empty() bool {
	return r.ReferenceText == "" && len(r.Snippets) == 0
}
