package mcpconfig

import (
	"net/url"
	"regexp"
	"strings"
)

// Mask replaces every redacted value.
const Mask = "****"

// RedactionRule is a pattern and its replacement, applied to command lines.
type RedactionRule struct {
	Pattern string
	Replace string
}

// CompiledRedaction is a pre-compiled redaction rule.
type CompiledRedaction struct {
	Pattern *regexp.Regexp
	Replace string
}

// DefaultRedactionRules mask flag-style and bearer secrets in arguments.
var DefaultRedactionRules = []RedactionRule{
	{Pattern: `(?i)(--?[a-z0-9-]*(?:token|secret|password|api-?key)[a-z0-9-]*=)\S+`, Replace: "${1}" + Mask},
	{Pattern: `(?i)(bearer\s+)\S+`, Replace: "${1}" + Mask},
	{Pattern: `\b(?:sk|ghp|gho|xox[abp])-?[A-Za-z0-9_-]{10,}\b`, Replace: Mask},
}

var defaultRedactions = MustCompileRedactionRules(DefaultRedactionRules)

var secretQueryKey = regexp.MustCompile(`(?i)token|secret|password|key|auth|sig`)

// CompileRedactionRules compiles redaction rules.
func CompileRedactionRules(rules []RedactionRule) ([]*CompiledRedaction, error) {
	var compiled []*CompiledRedaction
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, &CompiledRedaction{Pattern: re, Replace: r.Replace})
	}
	return compiled, nil
}

// MustCompileRedactionRules is CompileRedactionRules that panics on error.
func MustCompileRedactionRules(rules []RedactionRule) []*CompiledRedaction {
	compiled, err := CompileRedactionRules(rules)
	if err != nil {
		panic(err)
	}
	return compiled
}

// RedactString applies all compiled redaction rules to s.
func RedactString(s string, rules []*CompiledRedaction) string {
	for _, r := range rules {
		s = r.Pattern.ReplaceAllString(s, r.Replace)
	}
	return s
}

// Redact returns a copy of cfg safe to display: env and header values are
// masked, URL passwords and secret-looking query values are masked, and
// arguments pass through the default rules.
func Redact(cfg ServerConfig) ServerConfig {
	out := cfg
	out.Env = maskValues(cfg.Env)
	out.Headers = maskValues(cfg.Headers)
	out.URL = redactURL(cfg.URL)
	if cfg.Args != nil {
		out.Args = make([]string, len(cfg.Args))
		for i, a := range cfg.Args {
			out.Args[i] = RedactString(a, defaultRedactions)
		}
	}
	out.Command = RedactString(cfg.Command, defaultRedactions)
	return out
}

func maskValues(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k := range m {
		out[k] = Mask
	}
	return out
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return RedactString(raw, defaultRedactions)
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), Mask)
		}
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if secretQueryKey.MatchString(k) {
				q.Set(k, Mask)
			}
		}
		u.RawQuery = q.Encode()
	}
	// keep the mask readable
	return strings.ReplaceAll(u.String(), url.QueryEscape(Mask), Mask)
}
