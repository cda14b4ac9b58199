// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for deskpilot.
//
// Configuration is loaded from a single file specified by either the
// DESKPILOT_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks and no automatic file
// search.
//
// The file may contain development and production sections that are
// decoded over the base values when [Config].Environment matches.
// Only the keys present in the section change.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${DESKPILOT_ROOT}, and ${VAR:-default} patterns are
// expanded. Secrets are never read from the file directly when an
// *_env field names an environment variable.
//
// This package depends on no other deskpilot packages.
package config
