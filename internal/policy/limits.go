package policy

import (
	"strings"

	"github.com/astroguide/tutoring-platform/internal/model"
)

// Max completion tokens per difficulty tier.
const (
	MaxTokensBasic        = 1500
	MaxTokensIntermediate = 2000
	MaxTokensAdvanced     = 2500
)

// Short-term memory bounds: the primer loads at most 2*MaxRounds messages
// (one round = one user plus one assistant message).
const (
	MaxRounds       = 8
	MaxContextChars = 12000
)

// MaxCompletionTokens returns the output cap for a difficulty tier.
// Unknown or empty tiers get the intermediate cap.
func MaxCompletionTokens(difficulty string) int {
	switch strings.ToLower(difficulty) {
	case model.DifficultyBasic:
		return MaxTokensBasic
	case model.DifficultyAdvanced:
		return MaxTokensAdvanced
	default:
		return MaxTokensIntermediate
	}
}
