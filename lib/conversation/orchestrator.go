// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/bureau-foundation/deskpilot/lib/action"
	"github.com/bureau-foundation/deskpilot/lib/chatstore"
	"github.com/bureau-foundation/deskpilot/lib/clock"
	"github.com/bureau-foundation/deskpilot/lib/llm"
	llmcontext "github.com/bureau-foundation/deskpilot/lib/llm/context"
	"github.com/bureau-foundation/deskpilot/lib/screenshot"
)

// Desktop is the remote desktop surface a turn drives. It is
// satisfied by *desktop.Manager.
type Desktop interface {
	// Screenshot never fails; it degrades to a placeholder.
	Screenshot(ctx context.Context, id string, persistHistory bool) screenshot.Descriptor
	Execute(ctx context.Context, id string, request action.Request) (string, error)
}

// Options holds the turn budget and model parameters. Zero fields take
// the DefaultOptions value.
type Options struct {
	// Model is used for turns that do not name one.
	Model string

	// MaxActions bounds the tool-call rounds of one turn.
	MaxActions int

	// MaxRetries is the number of failed rounds after which the turn
	// gives up.
	MaxRetries int

	// BaseDelay and MaxDelay shape the retry backoff:
	// min(2^retry × BaseDelay, MaxDelay).
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// ContextLimit is the number of turns of the conversation sent to
	// the model, the current prompt included.
	ContextLimit int

	MaxTokens int

	// Temperature is the sampling temperature. Nil takes the default;
	// zero is a valid setting.
	Temperature *float64

	// ContextWindow is the model's context window in tokens. Zero
	// looks the model up; older transcript turns are dropped to fit.
	ContextWindow int

	// DisplayWidth and DisplayHeight are advertised in the computer
	// tool definition.
	DisplayWidth  int
	DisplayHeight int
}

// DefaultOptions returns the standard parameters.
func DefaultOptions() Options {
	temperature := 0.9
	return Options{
		Model:         "claude-3-5-sonnet-20241022",
		MaxActions:    3,
		MaxRetries:    5,
		BaseDelay:     5 * time.Second,
		MaxDelay:      60 * time.Second,
		ContextLimit:  1,
		MaxTokens:     1024,
		Temperature:   &temperature,
		DisplayWidth:  1280,
		DisplayHeight: 720,
	}
}

func (options Options) withDefaults() Options {
	defaults := DefaultOptions()
	if options.Model == "" {
		options.Model = defaults.Model
	}
	if options.MaxActions <= 0 {
		options.MaxActions = defaults.MaxActions
	}
	if options.MaxRetries <= 0 {
		options.MaxRetries = defaults.MaxRetries
	}
	if options.BaseDelay <= 0 {
		options.BaseDelay = defaults.BaseDelay
	}
	if options.MaxDelay <= 0 {
		options.MaxDelay = defaults.MaxDelay
	}
	if options.ContextLimit <= 0 {
		options.ContextLimit = defaults.ContextLimit
	}
	if options.MaxTokens <= 0 {
		options.MaxTokens = defaults.MaxTokens
	}
	if options.Temperature == nil {
		options.Temperature = defaults.Temperature
	}
	if options.DisplayWidth <= 0 || options.DisplayHeight <= 0 {
		options.DisplayWidth = defaults.DisplayWidth
		options.DisplayHeight = defaults.DisplayHeight
	}
	return options
}

// Config holds the collaborators of an Orchestrator. Provider,
// Desktop, and Store are required.
type Config struct {
	// Provider streams completions; usually an *llm.Router.
	Provider llm.Provider
	Desktop  Desktop
	Store    chatstore.Store

	// Clock times the retry backoff. Defaults to clock.Real().
	Clock clock.Clock

	Logger  *slog.Logger
	Options Options
}

// Orchestrator runs agent turns. It is safe for concurrent use; turns
// for the same target should not overlap.
type Orchestrator struct {
	provider llm.Provider
	desktop  Desktop
	store    chatstore.Store
	clock    clock.Clock
	logger   *slog.Logger
	options  Options
}

// NewOrchestrator validates config and returns an Orchestrator.
func NewOrchestrator(config Config) (*Orchestrator, error) {
	if config.Provider == nil {
		return nil, errors.New("conversation: Provider is required")
	}
	if config.Desktop == nil {
		return nil, errors.New("conversation: Desktop is required")
	}
	if config.Store == nil {
		return nil, errors.New("conversation: Store is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		provider: config.Provider,
		desktop:  config.Desktop,
		store:    config.Store,
		clock:    config.Clock,
		logger:   config.Logger,
		options:  config.Options.withDefaults(),
	}, nil
}

// Turn is one user prompt to run against a target.
type Turn struct {
	// TargetID names the remote desktop session.
	TargetID string

	// Conversation keys the stored transcript. Defaults to TargetID.
	Conversation string

	Prompt string

	// Model overrides Options.Model.
	Model string

	SystemPrompt string

	// MaxActions overrides Options.MaxActions when positive.
	MaxActions int

	// Output receives the streamed assistant text, action
	// descriptors, and notices. Nil discards them.
	Output io.Writer
}

// Outcome summarizes a finished turn.
type Outcome struct {
	// Rounds is the number of rounds that completed without error.
	Rounds int

	// Actions is the number of computer actions executed.
	Actions int

	// Final is the content of the last completed round.
	Final string

	MaxActionsReached bool

	// Failed reports that the retry budget was exhausted.
	Failed bool

	// Retries is the number of failed rounds.
	Retries int

	// Screenshot is the most recent capture of the target.
	Screenshot screenshot.Descriptor
}

// MaxActionsNotice is appended when a turn runs out of actions while
// the model still wants to act.
func MaxActionsNotice(limit int) string {
	return fmt.Sprintf("\nReached maximum actions (%d). Stopping.\n", limit)
}

// FailureNotice is appended when a turn exhausts its retries.
func FailureNotice(maxRetries int) string {
	return fmt.Sprintf("Error: Maximum retry attempts (%d) reached. Failing.", maxRetries)
}

// RetryNotice reports a failed round and the wait before the next.
func RetryNotice(err error, delay time.Duration, attempt, maxRetries int) string {
	return fmt.Sprintf("Error: %v. Retrying in %s seconds... (Attempt %d/%d)\n",
		err, strconv.FormatFloat(delay.Seconds(), 'f', -1, 64), attempt, maxRetries)
}

// ToolErrorMessage is the user message that tells the model why its
// tool call failed.
func ToolErrorMessage(err error) string {
	return fmt.Sprintf("Error during attempted tool call: %v", err)
}

// Backoff returns the delay after the given failed attempt (1-based):
// min(2^attempt × base, max).
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	delay := base
	for range attempt {
		if delay >= maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	return min(delay, maxDelay)
}

// turnState is the working state of one RunTurn.
type turnState struct {
	turn   Turn
	model  string
	output io.Writer

	// window holds the model context: replayed transcript, then the
	// current exchange, which is never evicted.
	window *llmcontext.Truncating

	// Per-round accumulation, reset at the start of each round.
	content   string
	toolCalls []chatstore.ToolCall
}

func (state *turnState) emit(text string) {
	state.content += text
	io.WriteString(state.output, text)
}

// RunTurn runs turn to completion. The returned error is non-nil only
// for invalid input, a failure to record the user prompt, or context
// cancellation; round failures are retried and, once the budget is
// spent, reported through Outcome.Failed and the failure notice.
func (orchestrator *Orchestrator) RunTurn(ctx context.Context, turn Turn) (Outcome, error) {
	var outcome Outcome
	if turn.TargetID == "" {
		return outcome, errors.New("conversation: turn has no target")
	}
	if turn.Conversation == "" {
		turn.Conversation = turn.TargetID
	}
	if turn.Output == nil {
		turn.Output = io.Discard
	}
	maxActions := orchestrator.options.MaxActions
	if turn.MaxActions > 0 {
		maxActions = turn.MaxActions
	}
	state := &turnState{turn: turn, model: turn.Model, output: turn.Output}
	if state.model == "" {
		state.model = orchestrator.options.Model
	}
	if err := ctx.Err(); err != nil {
		return outcome, err
	}

	logger := orchestrator.logger.With(
		"target_id", turn.TargetID,
		"conversation", turn.Conversation,
		"model", state.model,
	)

	current := orchestrator.desktop.Screenshot(ctx, turn.TargetID, true)
	outcome.Screenshot = current

	history, err := orchestrator.history(ctx, turn.Conversation)
	if err != nil {
		return outcome, err
	}
	state.window = orchestrator.newWindow(state.model)
	for _, message := range history {
		state.window.Append(message)
	}
	state.window.MarkCurrent()
	state.window.Append(replayUser(turn.Prompt, screenshotImage(&current)))

	if _, err := orchestrator.store.CreateTurn(ctx, chatstore.Turn{
		Conversation: turn.Conversation,
		TargetID:     turn.TargetID,
		Role:         chatstore.RoleUser,
		Model:        state.model,
		Content:      turn.Prompt,
		Screenshot:   &current,
	}); err != nil {
		return outcome, fmt.Errorf("conversation: recording prompt: %w", err)
	}
	logger.Info("turn started", "prior_messages", len(history))

	for {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		state.content = ""
		state.toolCalls = nil

		running, err := orchestrator.round(ctx, state, logger)
		if err == nil {
			var latest screenshot.Descriptor
			latest, err = orchestrator.finishRound(ctx, state, running, &outcome, maxActions)
			if err == nil {
				outcome.Screenshot = latest
				if !running || outcome.MaxActionsReached {
					logger.Info("turn finished",
						"rounds", outcome.Rounds,
						"actions", outcome.Actions,
						"max_actions_reached", outcome.MaxActionsReached,
					)
					return outcome, nil
				}
				continue
			}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome, ctxErr
		}

		outcome.Retries++
		delay := Backoff(outcome.Retries, orchestrator.options.BaseDelay, orchestrator.options.MaxDelay)
		logger.Warn("agent round failed",
			"error", err,
			"attempt", outcome.Retries,
			"max_attempts", orchestrator.options.MaxRetries,
			"delay", delay,
		)

		if outcome.Retries >= orchestrator.options.MaxRetries {
			outcome.Failed = true
			state.emit(FailureNotice(orchestrator.options.MaxRetries))
			orchestrator.recordAssistant(ctx, logger, state, outcome.Screenshot)
		} else {
			io.WriteString(state.output, RetryNotice(err, delay, outcome.Retries, orchestrator.options.MaxRetries))
		}

		if err := clock.SleepContext(ctx, orchestrator.clock, delay); err != nil {
			return outcome, err
		}
		if outcome.Failed {
			logger.Error("turn failed", "retries", outcome.Retries)
			return outcome, nil
		}
	}
}

// newWindow returns the context manager for a turn on model.
func (orchestrator *Orchestrator) newWindow(model string) *llmcontext.Truncating {
	contextWindow := orchestrator.options.ContextWindow
	if contextWindow <= 0 {
		contextWindow = llmcontext.ContextWindowForModel(model)
	}
	budget := llmcontext.Budget{
		ContextWindow:   contextWindow,
		MaxOutputTokens: orchestrator.options.MaxTokens,
	}
	return llmcontext.NewTruncating(budget.MessageTokenBudget(), llmcontext.NewCharEstimator())
}

// history returns the replayed prior turns of the conversation,
// oldest first.
func (orchestrator *Orchestrator) history(ctx context.Context, conversation string) ([]llm.Message, error) {
	limit := orchestrator.options.ContextLimit - 1
	if limit <= 0 {
		return nil, nil
	}
	turns, err := orchestrator.store.RecentTurns(ctx, chatstore.Filter{Conversation: conversation}, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: loading history: %w", err)
	}
	slices.Reverse(turns)

	var messages []llm.Message
	for _, turn := range turns {
		image := screenshotImage(turn.Screenshot)
		switch turn.Role {
		case chatstore.RoleUser:
			messages = append(messages, replayUser(turn.Content, image))
		case chatstore.RoleAssistant:
			messages = append(messages, replayAssistant(turn.Content, turn.ToolCalls, image)...)
		}
	}
	return messages, nil
}

// round makes one model call and consumes its stream. It reports
// whether the model called a tool and so expects another round.
func (orchestrator *Orchestrator) round(ctx context.Context, state *turnState, logger *slog.Logger) (bool, error) {
	messages, err := state.window.Messages(ctx)
	if err != nil {
		logger.Warn("model context over budget", "error", err)
	}
	if evicted := state.window.EvictedTurnGroups(); evicted > 0 {
		logger.Info("dropped older transcript turns to fit the context window", "evicted_turn_groups", evicted)
	}

	temperature := *orchestrator.options.Temperature
	stream, err := orchestrator.provider.Stream(ctx, llm.Request{
		Model:       state.model,
		System:      state.turn.SystemPrompt,
		Messages:    messages,
		Tools:       []llm.ToolDefinition{ComputerTool(orchestrator.options.DisplayWidth, orchestrator.options.DisplayHeight)},
		MaxTokens:   orchestrator.options.MaxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return false, err
	}
	if stream == nil {
		return false, nil
	}
	defer func() {
		state.window.RecordUsage(stream.Response().Usage)
		stream.Close()
	}()

	for {
		event, err := stream.Next()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		switch event.Type {
		case llm.EventText:
			state.emit(event.Text)
		case llm.EventToolCall:
			if err := orchestrator.execute(ctx, state, *event.ToolCall); err != nil {
				state.window.Append(llm.UserMessage(ToolErrorMessage(err)))
				return false, err
			}
			return true, nil
		case llm.EventStop:
			return false, nil
		case llm.EventError:
			return false, event.Err
		}
	}
}

// execute validates and runs one tool call, recording its descriptor.
func (orchestrator *Orchestrator) execute(ctx context.Context, state *turnState, call llm.ToolCall) error {
	request, err := validateToolCall(call)
	if err != nil {
		return err
	}
	descriptor, err := orchestrator.desktop.Execute(ctx, state.turn.TargetID, request)
	if err != nil {
		return err
	}
	if descriptor != "" {
		state.emit("\n" + descriptor + "\n")
	}
	state.toolCalls = append(state.toolCalls, chatstore.ToolCall{
		ID:         call.ID,
		Name:       call.Name,
		Input:      call.Arguments,
		Descriptor: descriptor,
	})
	return nil
}

// finishRound captures the screen after a successful round, applies
// the action budget, records the round, and extends the model context
// for the next round.
func (orchestrator *Orchestrator) finishRound(ctx context.Context, state *turnState, running bool, outcome *Outcome, maxActions int) (screenshot.Descriptor, error) {
	latest := orchestrator.desktop.Screenshot(ctx, state.turn.TargetID, true)

	exhausted := running && outcome.Actions+1 >= maxActions
	if exhausted {
		state.emit(MaxActionsNotice(maxActions))
	}

	if state.content != "" {
		if _, err := orchestrator.store.CreateTurn(ctx, chatstore.Turn{
			Conversation: state.turn.Conversation,
			TargetID:     state.turn.TargetID,
			Role:         chatstore.RoleAssistant,
			Model:        state.model,
			Content:      state.content,
			Screenshot:   &latest,
			ToolCalls:    state.toolCalls,
		}); err != nil {
			return latest, fmt.Errorf("conversation: recording assistant round: %w", err)
		}
	} else {
		orchestrator.logger.Info("assistant round produced no content; not recorded",
			"target_id", state.turn.TargetID,
		)
	}

	if running {
		outcome.Actions++
		outcome.MaxActionsReached = exhausted
	}
	outcome.Rounds++
	outcome.Final = state.content
	if running {
		for _, message := range replayAssistant(state.content, state.toolCalls, screenshotImage(&latest)) {
			state.window.Append(message)
		}
	}
	return latest, nil
}

// recordAssistant stores the failed round's content with the failure
// notice. A store error is logged; the turn is already failing.
func (orchestrator *Orchestrator) recordAssistant(ctx context.Context, logger *slog.Logger, state *turnState, latest screenshot.Descriptor) {
	_, err := orchestrator.store.CreateTurn(ctx, chatstore.Turn{
		Conversation: state.turn.Conversation,
		TargetID:     state.turn.TargetID,
		Role:         chatstore.RoleAssistant,
		Model:        state.model,
		Content:      state.content,
		Screenshot:   &latest,
		ToolCalls:    state.toolCalls,
	})
	if err != nil {
		logger.Error("recording failure notice", "error", err)
	}
}
