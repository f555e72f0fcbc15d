package rag

import (
	"strconv"
	"strings"

	"github.com/astroguide/tutoring-platform/internal/model"
)

// maxExcerptLen bounds citation excerpts in the done event.
const maxExcerptLen = 500

// MergeCitations flattens snippet lists into one ordered citation list.
// Lists are concatenated in argument order with no re-ranking. Blank-text
// candidates are dropped and do not consume an index. The synthesized
// chunk_<i> identifier uses the 0-based running position among all kept
// candidates, offset by startIndex.
func MergeCitations(startIndex int, lists ...[]Snippet) []model.Citation {
	var out []model.Citation
	idx := startIndex
	for _, list := range lists {
		for _, s := range list {
			if strings.TrimSpace(s.Text) == "" {
				continue
			}

			source := s.Source
			if source == "" {
				source = "Unknown"
			}

			chunkID := s.ChunkID
			if chunkID == "" {
				chunkID = s.ID
			}
			if chunkID == "" {
				chunkID = "chunk_" + strconv.Itoa(idx)
			}

			excerpt := s.Text
			if len(excerpt) > maxExcerptLen {
				excerpt = excerpt[:maxExcerptLen] + "..."
			}

			out = append(out, model.Citation{
				ChunkID: chunkID,
				Source:  source,
				Excerpt: excerpt,
			})
			idx++
		}
	}
	return out
}
