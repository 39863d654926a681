package config

import (
	"fmt"
	"regexp"
	"strings"
)

// bracePattern matches ${NAME}. Bare $NAME is left alone so secrets that
// contain a dollar sign survive expansion.
var bracePattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// MissingAction specifies how ExpandEnv handles undefined variables.
type MissingAction int

const (
	// MissingKeep keeps the placeholder as-is.
	MissingKeep MissingAction = iota

	// MissingEmpty replaces the placeholder with an empty string.
	MissingEmpty

	// MissingError fails with an UndefinedVariableError.
	MissingError
)

// UndefinedVariableError lists the variables ExpandEnv could not resolve.
type UndefinedVariableError struct {
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

// ExpandEnv returns a copy of c with ${NAME} references in string values
// replaced from environ (os.Environ form). Nested maps and slices are
// walked; other values are shared.
//
//	agent:
//	  api_key: ${OPENAI_API_KEY}
func (c Config) ExpandEnv(environ []string, missing MissingAction) (Config, error) {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		if name, value, ok := strings.Cut(kv, "="); ok {
			vars[name] = value
		}
	}

	e := expander{vars: vars, missing: missing}
	out, _ := e.value(c.data).(map[string]any)
	if len(e.undefined) > 0 {
		return Config{}, &UndefinedVariableError{Names: e.undefined}
	}
	return New(out), nil
}

type expander struct {
	vars      map[string]string
	missing   MissingAction
	undefined []string
}

func (e *expander) value(v any) any {
	switch val := v.(type) {
	case string:
		return e.expand(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = e.value(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = e.value(sub)
		}
		return out
	default:
		return v
	}
}

func (e *expander) expand(s string) string {
	return bracePattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if val, ok := e.vars[name]; ok {
			return val
		}
		switch e.missing {
		case MissingEmpty:
			return ""
		case MissingError:
			e.undefined = append(e.undefined, name)
		}
		return match
	})
}
