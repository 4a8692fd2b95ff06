// Package cli provides common CLI utilities for the convrelay command.
//
// This package includes:
//   - Configuration management (contexts, one per relay backend)
//   - Output formatting (YAML, JSON, aligned tables)
//   - Request file loading (YAML/JSON)
//   - Terminal styles for event cards and frames
//
// Configuration is stored in ~/.giztoy/<app>/ directory, supporting
// multiple contexts similar to kubectl.
//
// Example usage:
//
//	cfg, err := cli.LoadConfig("convrelay")
//	ctx, err := cfg.ResolveContext(name)
//
//	cli.Output(devices, cli.OutputOptions{Format: cli.FormatJSON})
package cli
