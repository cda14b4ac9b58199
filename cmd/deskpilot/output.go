// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

type outputKind int

const (
	outputText outputKind = iota
	outputAction
	outputNotice
	outputError
)

var actionTag = regexp.MustCompile(`^<[a-z_]+>.*</[a-z_]+>$`)

// classifyOutput recognizes the pieces the agent loop writes: action
// descriptors, the maximum-actions and unknown-key notices, and retry
// and failure errors. Everything else is model text.
func classifyOutput(text string) outputKind {
	trimmed := strings.Trim(text, "\n")
	switch {
	case strings.HasPrefix(trimmed, "Error: "):
		return outputError
	case strings.HasPrefix(trimmed, "Reached maximum actions"),
		strings.HasPrefix(trimmed, "<warning>"):
		return outputNotice
	case actionTag.MatchString(trimmed):
		return outputAction
	default:
		return outputText
	}
}

// outputWriter renders the streamed agent output. The agent loop
// writes each chunk, descriptor, and notice with its own Write call,
// so every call is classified and styled as a whole.
type outputWriter struct {
	out    io.Writer
	styled bool
	styles map[outputKind]lipgloss.Style
}

func newOutputWriter(out io.Writer, styled bool) *outputWriter {
	writer := &outputWriter{out: out, styled: styled}
	if !styled {
		return writer
	}
	// The caller has decided the output is styled. Renderer.ColorProfile
	// re-detects from the environment unless the profile is set
	// explicitly.
	renderer := lipgloss.NewRenderer(out, termenv.WithProfile(termenv.ANSI256))
	renderer.SetColorProfile(termenv.ANSI256)
	writer.styles = map[outputKind]lipgloss.Style{
		outputAction: renderer.NewStyle().Foreground(lipgloss.Color("6")),
		outputNotice: renderer.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		outputError:  renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
	return writer
}

func (writer *outputWriter) Write(p []byte) (int, error) {
	style, ok := writer.styles[classifyOutput(string(p))]
	if !writer.styled || !ok {
		return writer.out.Write(p)
	}

	// Style line by line so the surrounding newlines stay unstyled and
	// multi-line notices are not padded to a common width.
	lines := strings.Split(string(p), "\n")
	for index, line := range lines {
		if line != "" {
			lines[index] = style.Render(line)
		}
	}
	if _, err := io.WriteString(writer.out, strings.Join(lines, "\n")); err != nil {
		return 0, err
	}
	return len(p), nil
}
