package override

import "fmt"

// Kind selects the pipeline stage a request is applied in.
type Kind string

const (
	KindEnv               Kind = "env"
	KindConfig            Kind = "config"
	KindBinding           Kind = "binding"
	KindAlias             Kind = "alias"
	KindProvider          Kind = "provider"
	KindRequireEnv        Kind = "require-env"
	KindDefineEnvironment Kind = "define-environment"
)

// Kinds lists every kind in the order the pipeline consumes them.
var Kinds = []Kind{
	KindBinding,
	KindEnv,
	KindRequireEnv,
	KindAlias,
	KindProvider,
	KindConfig,
	KindDefineEnvironment,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Origin records where a request was declared.
type Origin string

const (
	OriginProgrammatic Origin = "programmatic"
	OriginAnnotation   Origin = "annotation"
	OriginAttribute    Origin = "attribute"
)

// Rank orders origins for draining; higher ranks are applied later.
func (o Origin) Rank() int {
	switch o {
	case OriginProgrammatic:
		return 0
	case OriginAnnotation:
		return 1
	case OriginAttribute:
		return 2
	}
	return -1
}

// Declarative reports whether o is an annotation or attribute origin.
func (o Origin) Declarative() bool {
	return o == OriginAnnotation || o == OriginAttribute
}

// Request is a single override instruction.
//
// Target is the dotted config path, environment variable name, binding
// abstract, alias name or provider name depending on Kind. For provider
// requests Value is the replacement provider name. For require-env requests
// Value is an optional skip message.
type Request struct {
	Kind     Kind   `json:"kind" yaml:"kind"`
	Target   string `json:"target" yaml:"target"`
	Value    any    `json:"value,omitempty" yaml:"value,omitempty"`
	Origin   Origin `json:"origin" yaml:"origin"`
	Position int    `json:"position" yaml:"position"`
}

func (r Request) String() string {
	return fmt.Sprintf("%s %s=%v (%s)", r.Kind, r.Target, r.Value, r.Origin)
}

// Programmatic builds a programmatic-origin request.
func Programmatic(kind Kind, target string, value any) Request {
	return Request{Kind: kind, Target: target, Value: value, Origin: OriginProgrammatic}
}
