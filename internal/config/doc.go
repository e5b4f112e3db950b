// Package config supplies llmdiag settings.
//
// Settings come from three layers, highest priority first:
//   - LLMDIAG_* environment variables (after an optional .env file)
//   - a YAML file
//   - built-in defaults
//
// Example file:
//
//	enabled: true
//	model: gpt-4o-mini
//	analysis_interval_ms: 3000
//	languages: [go, python]
//	excluded_file_extensions: [.txt, .md]
//	provider: openai
//	prompt_template: ./prompt.txt
//
// Consumers hold a Provider and call Settings for each decision rather than
// caching a snapshot.
package config
