// Package configs embeds the configuration templates written by
// `sayln config init`.
//
// Templates are embedded at build time so binary releases carry them.
//
// Template files:
//   - user-config.example.yaml: machine settings (store backend, data dir,
//     OpenSearch credentials) written to ~/.config/sayln/config.yaml
//   - project-config.example.yaml: per-deployment tuning (search sizes and
//     timeouts, server, waitlist) written to .sayln.yaml
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults
//  2. User config (~/.config/sayln/config.yaml)
//  3. Project config (.sayln.yaml)
//  4. .env file
//  5. Environment variables (SAYLN_*)
package configs

import _ "embed"

// UserConfigTemplate is the machine-level configuration template.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the project-level configuration template.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
