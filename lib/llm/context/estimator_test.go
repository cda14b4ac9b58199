// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"math"
	"strings"
	"testing"

	"github.com/bureau-foundation/deskpilot/lib/llm"
)

func TestCharEstimator_DefaultRatio(t *testing.T) {
	t.Parallel()

	// 400 characters + 20 framing = 420; 420/4.0 = 105, rounded up.
	messages := []llm.Message{llm.UserMessage(strings.Repeat("x", 400))}
	if got := NewCharEstimator().EstimateTokens(messages); got != 106 {
		t.Errorf("EstimateTokens() = %d, want 106", got)
	}
}

func TestCharEstimator_ChargesImages(t *testing.T) {
	t.Parallel()

	estimator := NewCharEstimator()
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: []llm.ContentBlock{
			llm.TextBlock(strings.Repeat("x", 380)),
			llm.ImageBlock("image/jpeg", make([]byte, 200_000)),
		}},
		{Role: llm.RoleUser, Content: []llm.ContentBlock{
			llm.ToolResultBlock("", "", &llm.Image{MediaType: "image/jpeg"}, false),
		}},
	}
	// (380 + 20 + 20) / 4 = 105, +1, plus two images.
	want := 106 + 2*DefaultImageTokens
	if got := estimator.EstimateTokens(messages); got != want {
		t.Errorf("EstimateTokens() = %d, want %d (image bytes must not count)", got, want)
	}
}

func TestCharEstimator_FirstObservationReplacesDefault(t *testing.T) {
	t.Parallel()

	estimator := NewCharEstimator()
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: []llm.ContentBlock{
			llm.TextBlock(strings.Repeat("x", 30)),
			llm.ImageBlock("image/jpeg", nil),
		}},
	}
	// 50 characters over 25 text tokens, once the image is taken out:
	// 2.0 characters per token.
	estimator.RecordUsage(messages, int64(DefaultImageTokens+25))
	if math.Abs(estimator.charactersPerToken-2.0) > 1e-9 {
		t.Fatalf("ratio = %v, want 2.0", estimator.charactersPerToken)
	}
	if got, want := estimator.EstimateTokens(messages), 26+DefaultImageTokens; got != want {
		t.Errorf("EstimateTokens() = %d, want %d", got, want)
	}
}

func TestCharEstimator_SmoothsLaterObservations(t *testing.T) {
	t.Parallel()

	estimator := NewCharEstimator()
	// 100 characters: 2.0 per token, then 4.0.
	messages := []llm.Message{llm.UserMessage(strings.Repeat("x", 80))}
	estimator.RecordUsage(messages, 50)
	estimator.RecordUsage(messages, 25)

	want := 0.3*4.0 + 0.7*2.0
	if math.Abs(estimator.charactersPerToken-want) > 1e-9 {
		t.Errorf("ratio = %v, want %v", estimator.charactersPerToken, want)
	}
}

func TestCharEstimator_IgnoresUnusableObservations(t *testing.T) {
	t.Parallel()

	estimator := NewCharEstimator()
	estimator.RecordUsage([]llm.Message{llm.UserMessage("hi")}, 0)
	estimator.RecordUsage([]llm.Message{screenshotMessage()}, int64(DefaultImageTokens))
	if estimator.charactersPerToken != defaultCharactersPerToken || estimator.observationCount != 0 {
		t.Errorf("ratio = %v after %d observations, want the default untouched",
			estimator.charactersPerToken, estimator.observationCount)
	}
}
