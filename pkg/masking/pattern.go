// Package masking scrubs credentials from audit messages, notification text,
// and structured detail payloads before they are persisted or sent anywhere.
package masking

import (
	"log/slog"
	"regexp"
)

// Pattern is one masking rule before compilation.
type Pattern struct {
	Pattern     string
	Replacement string
	Description string
}

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// builtinPatterns is the fixed credential set applied to every masked value.
// Patterns target assignments and well-known token shapes, not free text, so
// ordinary prose passes through untouched.
func builtinPatterns() map[string]Pattern {
	return map[string]Pattern{
		"api_key": {
			Pattern:     `(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{20,})["']?`,
			Replacement: `"api_key": "__MASKED_API_KEY__"`,
			Description: "API keys",
		},
		"anthropic_key": {
			Pattern:     `sk-ant-[A-Za-z0-9_\-]{20,}`,
			Replacement: `__MASKED_ANTHROPIC_KEY__`,
			Description: "Anthropic API keys",
		},
		"password": {
			Pattern:     `(?i)(?:password|pwd|passwd)["']?\s*[:=]\s*["']?([^"'\s\n]{6,})["']?`,
			Replacement: `"password": "__MASKED_PASSWORD__"`,
			Description: "Passwords",
		},
		"token": {
			Pattern:     `(?i)(?:token|bearer|jwt)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
			Replacement: `"token": "__MASKED_TOKEN__"`,
			Description: "Access tokens",
		},
		"certificate": {
			Pattern:     `(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`,
			Replacement: `__MASKED_CERTIFICATE__`,
			Description: "SSL/TLS certificates",
		},
		"ssh_key": {
			Pattern:     `ssh-(?:rsa|dss|ed25519|ecdsa)\s+[A-Za-z0-9+/=]+`,
			Replacement: `__MASKED_SSH_KEY__`,
			Description: "SSH public keys",
		},
		"private_key": {
			Pattern:     `(?i)(?:private[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
			Replacement: `"private_key": "__MASKED_PRIVATE_KEY__"`,
			Description: "Private keys",
		},
		"secret_key": {
			Pattern:     `(?i)(?:secret[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
			Replacement: `"secret_key": "__MASKED_SECRET_KEY__"`,
			Description: "Secret keys",
		},
		"aws_access_key": {
			Pattern:     `AKIA[A-Z0-9]{16}`,
			Replacement: `__MASKED_AWS_KEY__`,
			Description: "AWS access keys",
		},
		"github_token": {
			Pattern:     `gh[pousr]_[A-Za-z0-9_]{36,255}`,
			Replacement: `__MASKED_GITHUB_TOKEN__`,
			Description: "GitHub tokens",
		},
		"slack_token": {
			Pattern:     `(?i)xox[baprs]-[A-Za-z0-9-]{10,72}`,
			Replacement: `__MASKED_SLACK_TOKEN__`,
			Description: "Slack tokens",
		},
	}
}

// compilePatterns compiles the builtin set. Invalid patterns are logged and
// skipped rather than failing startup.
func compilePatterns() []*CompiledPattern {
	patterns := builtinPatterns()
	compiled := make([]*CompiledPattern, 0, len(patterns))
	for name, p := range patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			slog.Error("Failed to compile built-in masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		compiled = append(compiled, &CompiledPattern{
			Name:        name,
			Regex:       re,
			Replacement: p.Replacement,
			Description: p.Description,
		})
	}
	return compiled
}
