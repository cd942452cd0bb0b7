package config

import (
	"os"
	"strings"
)

// LookupFunc resolves an environment variable. It has the same contract as
// os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// OSLookup reads the process environment.
var OSLookup LookupFunc = os.LookupEnv

// CastEnvValue converts the literal markers used in environment values.
// Anything else is returned unchanged.
func CastEnvValue(raw string) any {
	switch strings.ToLower(raw) {
	case "true", "(true)":
		return true
	case "false", "(false)":
		return false
	case "null", "(null)":
		return nil
	case "empty", "(empty)":
		return ""
	}
	return raw
}

// Expand resolves ${VAR} and ${VAR:-default} references in every string
// reachable from v. Mappings and lists are rebuilt; other values are
// returned as-is.
func Expand(v any, lookup LookupFunc) any {
	switch val := v.(type) {
	case string:
		return expandString(val, lookup)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Expand(elem, lookup)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Expand(elem, lookup)
		}
		return out
	}
	return v
}

func expandString(s string, lookup LookupFunc) any {
	if !strings.Contains(s, "${") {
		return s
	}

	var b strings.Builder
	refs := 0
	literal := false
	rest := s
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			break
		}
		end += start

		if start > 0 {
			literal = true
		}
		b.WriteString(rest[:start])
		b.WriteString(resolveRef(rest[start+2:end], lookup))
		refs++
		rest = rest[end+1:]
	}
	if rest != "" {
		literal = true
	}
	b.WriteString(rest)

	if refs == 1 && !literal {
		return CastEnvValue(b.String())
	}
	return b.String()
}

func resolveRef(inner string, lookup LookupFunc) string {
	name, def, hasDefault := strings.Cut(inner, ":-")
	if v, ok := lookup(name); ok && (v != "" || !hasDefault) {
		return v
	}
	return def
}
