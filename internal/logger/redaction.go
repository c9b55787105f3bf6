package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// Redactor masks credentials in log output
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// OpenAI and Anthropic API keys
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),

			// Authorization headers
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._~+/=-]+`),
			regexp.MustCompile(`Basic\s+[a-zA-Z0-9+/]+=*`),

			// Azure OpenAI api-key header and config fields
			regexp.MustCompile(`(?i)api[-_]?key["\s:=]+[^\s",}]+`),

			// Azure DevOps personal access tokens
			regexp.MustCompile(`(?i)\b(personal_access_token|pat)["\s:=]+[^\s",}]+`),
			regexp.MustCompile(`\b[a-z2-7]{52}\b`),
			regexp.MustCompile(`\b[a-zA-Z0-9]{84}\b`),

			// Passwords
			regexp.MustCompile(`password["\s:=]+[^\s"]+`),

			// Auth tokens
			regexp.MustCompile(`token["\s:=]+[a-zA-Z0-9._-]{20,}`),

			// Generic secrets
			regexp.MustCompile(`secret["\s:=]+[^\s"]+`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact masks every match of every pattern
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, redacted)
	}
	return result
}

// Wrap returns a writer that redacts before forwarding to w
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so callers do not treat a shorter
// redacted line as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
