// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package redact scrubs secrets from host-supplied notification attributes
// and exception messages before they are attached to spans.
package redact

import (
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Placeholder replaces a fully redacted value.
const Placeholder = "[REDACTED]"

// RedactionMode determines the level of redaction applied to attributes.
type RedactionMode string

const (
	// ModeNone disables redaction.
	ModeNone RedactionMode = "none"

	// ModeStandard applies key- and pattern-based redaction for common secrets.
	ModeStandard RedactionMode = "standard"

	// ModeStrict redacts all attribute values (only keys preserved).
	ModeStrict RedactionMode = "strict"
)

// ParseMode converts a configuration string to a RedactionMode.
// The empty string selects ModeStandard.
func ParseMode(s string) (RedactionMode, error) {
	switch RedactionMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStandard:
		return ModeStandard, nil
	case ModeNone:
		return ModeNone, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("unknown redaction mode %q", s)
	}
}

// Pattern defines a redaction pattern with a name and regular expression.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// StandardPatterns returns the default set of redaction patterns. They target
// what tends to leak through connector attributes: credentials embedded in
// URLs, auth headers, and tokens in payload snippets.
func StandardPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "url_credentials",
			Regex:       regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.\-]*://)[^/\s:@]+:[^/\s@]+@`),
			Replacement: "${1}" + Placeholder + "@",
		},
		{
			Name:        "bearer_token",
			Regex:       regexp.MustCompile(`(?i)(bearer\s+)([a-zA-Z0-9_\-\.=]{16,})`),
			Replacement: "${1}" + Placeholder,
		},
		{
			Name:        "basic_auth",
			Regex:       regexp.MustCompile(`(?i)(basic\s+)([a-zA-Z0-9+/]{12,}={0,2})`),
			Replacement: "${1}" + Placeholder,
		},
		{
			Name:        "api_key",
			Regex:       regexp.MustCompile(`(?i)(api[_-]?key|apikey)["\s:=]+([a-zA-Z0-9_\-]{16,})`),
			Replacement: "${1}=" + Placeholder,
		},
		{
			Name:        "password",
			Regex:       regexp.MustCompile(`(?i)(password|passwd|pwd)["\s:=]+([^\s"&]+)`),
			Replacement: "${1}=" + Placeholder,
		},
		{
			Name:        "generic_secret",
			Regex:       regexp.MustCompile(`(?i)(secret|token)["\s:=]+([a-zA-Z0-9_\-]{16,})`),
			Replacement: "${1}=" + Placeholder,
		},
		{
			Name:        "aws_key",
			Regex:       regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
			Replacement: "[REDACTED-AWS-KEY]",
		},
		{
			Name:        "private_key",
			Regex:       regexp.MustCompile(`(?s)(-----BEGIN (?:RSA |EC |DSA )?PRIVATE KEY-----).*?(-----END (?:RSA |EC |DSA )?PRIVATE KEY-----)`),
			Replacement: "${1}" + Placeholder + "${2}",
		},
		{
			Name:        "jwt",
			Regex:       regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
			Replacement: "[REDACTED-JWT]",
		},
		{
			Name:        "credit_card",
			Regex:       regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
			Replacement: "[REDACTED-CC]",
		},
	}
}

// sensitiveKeys are attribute key fragments whose values are always dropped.
var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "token",
	"api_key", "apikey", "api-key",
	"private_key",
	"authorization", "credential",
	"cookie",
}

// Redactor applies redaction rules. A nil *Redactor passes everything through.
type Redactor struct {
	mode     RedactionMode
	patterns []Pattern
}

// NewRedactor creates a new redactor with the specified mode.
func NewRedactor(mode RedactionMode) *Redactor {
	return NewRedactorWithPatterns(mode, StandardPatterns())
}

// NewRedactorWithPatterns creates a redactor with custom patterns.
func NewRedactorWithPatterns(mode RedactionMode, patterns []Pattern) *Redactor {
	return &Redactor{
		mode:     mode,
		patterns: patterns,
	}
}

// Mode returns the redaction mode.
func (r *Redactor) Mode() RedactionMode {
	if r == nil {
		return ModeNone
	}
	return r.mode
}

// RedactString applies redaction patterns to a string value.
func (r *Redactor) RedactString(s string) string {
	switch r.Mode() {
	case ModeNone:
		return s
	case ModeStrict:
		return Placeholder
	}

	for _, pattern := range r.patterns {
		s = pattern.Regex.ReplaceAllString(s, pattern.Replacement)
	}
	return s
}

// RedactAttributes returns a redacted copy of attrs. The input is not modified.
func (r *Redactor) RedactAttributes(attrs []attribute.KeyValue) []attribute.KeyValue {
	if r.Mode() == ModeNone || len(attrs) == 0 {
		return attrs
	}

	redacted := make([]attribute.KeyValue, len(attrs))
	for i, attr := range attrs {
		redacted[i] = r.redactAttribute(attr)
	}
	return redacted
}

func (r *Redactor) redactAttribute(attr attribute.KeyValue) attribute.KeyValue {
	if r.mode == ModeStrict || IsSensitiveKey(string(attr.Key)) {
		return attr.Key.String(Placeholder)
	}

	switch attr.Value.Type() {
	case attribute.STRING:
		return attr.Key.String(r.RedactString(attr.Value.AsString()))
	case attribute.STRINGSLICE:
		values := attr.Value.AsStringSlice()
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = r.RedactString(v)
		}
		return attr.Key.StringSlice(out)
	default:
		return attr
	}
}

// IsSensitiveKey reports whether an attribute key names secret material.
func IsSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}
