package orchestrator

import (
	"strings"

	"github.com/astroguide/tutoring-platform/internal/model"
)

// BuildSystemPrompt composes the tutoring system instructions for one turn,
// tuned by difficulty and language, with the inline term/symbol marker
// protocol and, when reference material is present, an instruction to
// ground the answer in it.
func BuildSystemPrompt(difficulty, language string, hasReference bool) string {
	langInstruction := "Please answer in English."
	if strings.EqualFold(language, "zh") {
		langInstruction = "请使用中文回答。"
	}

	var diffHint string
	switch strings.ToLower(difficulty) {
	case model.DifficultyBasic:
		diffHint = "Use simple language and avoid jargon."
	case model.DifficultyAdvanced:
		diffHint = "You may use precise terminology and include formulas when helpful."
	default:
		diffHint = "Explain clearly with moderate detail."
	}

	refInstruction := ""
	if hasReference {
		refInstruction = " Prioritize the reference content below when answering; you may cite [source: xxx] where appropriate. Do not invent information not present in the references."
	}

	markerProtocol := " For key terms or symbols, use markers: [[term:Term Name]] or [[sym:formula]]. " +
		"Optional stable key: [[term:Name|key=id]]. " +
		"Do not use [[...]] for anything other than term/sym markers."

	return "You are a university-level astronomy tutor. " + langInstruction + " " + diffHint +
		" Structure your answer: conclusion first, then layered explanation, optional formulas, common misconceptions, and next-step suggestions. " +
		"Use Markdown and LaTeX where appropriate. Do not fabricate citations." + refInstruction + markerProtocol
}
