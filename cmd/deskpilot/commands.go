// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/deskpilot/lib/action"
	"github.com/bureau-foundation/deskpilot/lib/conversation"
	"github.com/bureau-foundation/deskpilot/lib/process"
)

// Exit code for a turn or capture that completed without the result
// the caller asked for: retries exhausted, or a placeholder screenshot.
const exitDegraded = 2

func runTurn(ctx context.Context, args []string, stdio streams, deps dependencies) error {
	var flags commonFlags
	var taskPath, prompt, conversationKey, model string
	var maxActions int

	flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.add(flagSet)
	flagSet.StringVar(&taskPath, "task", "", "path to a JSONC task file")
	flagSet.StringVar(&prompt, "prompt", "", "user prompt (overrides the task's prompt)")
	flagSet.StringVar(&conversationKey, "conversation", "", "transcript key (default: the target id)")
	flagSet.StringVar(&model, "model", "", "model name (overrides the task and agent.model)")
	flagSet.IntVar(&maxActions, "max-actions", 0, "action budget for the turn (overrides the task and agent.max_actions)")

	if done, err := parseFlags(flagSet, args, stdio); done || err != nil {
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("run: unexpected arguments %q", flagSet.Args())
	}

	var task Task
	if taskPath != "" {
		loaded, err := loadTask(taskPath)
		if err != nil {
			return err
		}
		task = loaded
	}
	overrideString(&task.Target, flags.target)
	overrideString(&task.Prompt, prompt)
	overrideString(&task.Conversation, conversationKey)
	overrideString(&task.Model, model)
	if maxActions > 0 {
		task.MaxActions = maxActions
	}
	if task.Target == "" {
		return errors.New("run: a target is required (--target or the task's target)")
	}
	if task.Prompt == "" {
		return errors.New("run: a prompt is required (--prompt or the task's prompt)")
	}

	env, err := openEnvironment(&flags, stdio, deps)
	if err != nil {
		return err
	}
	defer env.Close()

	if task.Model == "" {
		task.Model = env.config.Agent.Model
	}
	if task.SystemPrompt == "" {
		task.SystemPrompt = env.config.Agent.SystemPrompt
	}

	router := env.router()
	if _, err := router.Resolve(task.Model); err != nil {
		return fmt.Errorf("run: %w (%s)", err, env.providerHint(task.Model))
	}

	store, closeStore, err := env.openChatStore(flags.memory)
	if err != nil {
		return err
	}
	defer closeStore()

	orchestrator, err := conversation.NewOrchestrator(conversation.Config{
		Provider: router,
		Desktop:  env.desktop,
		Store:    store,
		Logger:   env.logger,
		Options:  agentOptions(env.config),
	})
	if err != nil {
		return err
	}

	outcome, err := orchestrator.RunTurn(ctx, conversation.Turn{
		TargetID:     task.Target,
		Conversation: task.Conversation,
		Prompt:       task.Prompt,
		Model:        task.Model,
		SystemPrompt: task.SystemPrompt,
		MaxActions:   task.MaxActions,
		Output:       newOutputWriter(stdio.stdout, isTerminal(stdio.stdout)),
	})
	fmt.Fprintln(stdio.stdout)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	env.logger.Info("turn finished",
		"target_id", task.Target,
		"rounds", outcome.Rounds,
		"actions", outcome.Actions,
		"retries", outcome.Retries,
		"max_actions_reached", outcome.MaxActionsReached,
		"failed", outcome.Failed,
		"screenshot", outcome.Screenshot.URL,
	)
	if outcome.Failed {
		return &process.ExitError{Code: exitDegraded}
	}
	return nil
}

func runScreenshot(ctx context.Context, args []string, stdio streams, deps dependencies) error {
	var flags commonFlags
	var history bool

	flagSet := pflag.NewFlagSet("screenshot", pflag.ContinueOnError)
	flags.add(flagSet)
	flagSet.BoolVar(&history, "history", false, "write a timestamped history screenshot and apply retention")

	if done, err := parseFlags(flagSet, args, stdio); done || err != nil {
		return err
	}
	if flags.target == "" {
		return errors.New("screenshot: --target is required")
	}

	env, err := openEnvironment(&flags, stdio, deps)
	if err != nil {
		return err
	}
	defer env.Close()

	descriptor := env.desktop.Screenshot(ctx, flags.target, history)
	encoded, err := json.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return fmt.Errorf("screenshot: encoding descriptor: %w", err)
	}
	fmt.Fprintln(stdio.stdout, string(encoded))
	if descriptor.Placeholder {
		return &process.ExitError{Code: exitDegraded}
	}
	return nil
}

func runAction(ctx context.Context, args []string, stdio streams, deps dependencies) error {
	var flags commonFlags

	flagSet := pflag.NewFlagSet("action", pflag.ContinueOnError)
	flags.add(flagSet)

	if done, err := parseFlags(flagSet, args, stdio); done || err != nil {
		return err
	}
	if flags.target == "" {
		return errors.New("action: --target is required")
	}
	if flagSet.NArg() != 1 {
		return errors.New(`action: exactly one JSON argument is required, e.g. '{"action":"left_click","coordinate":[10,20]}'`)
	}
	request, err := action.ParseToolInput(json.RawMessage(flagSet.Arg(0)))
	if err != nil {
		return fmt.Errorf("action: %w", err)
	}

	env, err := openEnvironment(&flags, stdio, deps)
	if err != nil {
		return err
	}
	defer env.Close()

	descriptor, err := env.desktop.Execute(ctx, flags.target, request)
	if err != nil {
		return fmt.Errorf("action: %w", err)
	}
	fmt.Fprintln(stdio.stdout, descriptor)
	return nil
}

func overrideString(field *string, value string) {
	if value != "" {
		*field = value
	}
}
