// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import "github.com/bureau-foundation/deskpilot/lib/llm"

// defaultCharactersPerToken is the initial ratio before calibration.
// It overestimates tokens for English text and JSON.
const defaultCharactersPerToken = 4.0

// defaultSmoothingFactor is the weight of a new observation in the
// running ratio.
const defaultSmoothingFactor = 0.3

// DefaultImageTokens is the charge for one screenshot. A 1280x720
// image costs about width×height/750 ≈ 1229 tokens at Anthropic; the
// default rounds up to cover larger displays.
const DefaultImageTokens = 1600

// CharEstimator estimates token counts from character counts using an
// adaptive ratio, plus a fixed charge per image.
//
// After each call, RecordUsage adjusts the ratio by exponential moving
// average so the estimate converges toward the provider's tokenizer.
// The image charge is subtracted from the reported count first; the
// ratio absorbs the remaining system prompt and tool overhead, which
// keeps early estimates on the high side.
type CharEstimator struct {
	charactersPerToken float64
	smoothingFactor    float64
	imageTokens        int
	observationCount   int
}

// NewCharEstimator creates a CharEstimator with a ratio of 4.0
// characters per token and DefaultImageTokens per image.
func NewCharEstimator() *CharEstimator {
	return &CharEstimator{
		charactersPerToken: defaultCharactersPerToken,
		smoothingFactor:    defaultSmoothingFactor,
		imageTokens:        DefaultImageTokens,
	}
}

// EstimateTokens returns the estimated token count, rounded up.
func (estimator *CharEstimator) EstimateTokens(messages []llm.Message) int {
	characters := messagesCharCount(messages)
	tokens := float64(characters) / estimator.charactersPerToken
	return int(tokens) + 1 + messagesImageCount(messages)*estimator.imageTokens
}

// RecordUsage updates the ratio from an observed token count. The
// first observation replaces the default ratio; later ones blend in.
func (estimator *CharEstimator) RecordUsage(messages []llm.Message, actualInputTokens int64) {
	textTokens := actualInputTokens - int64(messagesImageCount(messages)*estimator.imageTokens)
	if textTokens <= 0 {
		return
	}
	characters := messagesCharCount(messages)
	if characters == 0 {
		return
	}

	observedRatio := float64(characters) / float64(textTokens)

	estimator.observationCount++
	if estimator.observationCount == 1 {
		estimator.charactersPerToken = observedRatio
		return
	}
	estimator.charactersPerToken = estimator.smoothingFactor*observedRatio +
		(1.0-estimator.smoothingFactor)*estimator.charactersPerToken
}
