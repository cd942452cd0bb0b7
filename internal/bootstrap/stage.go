package bootstrap

import "fmt"

// Stage is a pipeline position, 1 through 8.
type Stage int

const (
	StageResolveApplication Stage = iota + 1
	StageResolveBindings
	StageResolveExceptionHandling
	StageResolveCore
	StageResolveEnvironmentVariables
	StageResolveConfiguration
	StageResolveKernels
	StageResolveBootstrappers
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageResolveApplication,
	StageResolveBindings,
	StageResolveExceptionHandling,
	StageResolveCore,
	StageResolveEnvironmentVariables,
	StageResolveConfiguration,
	StageResolveKernels,
	StageResolveBootstrappers,
}

var stageNames = map[Stage]string{
	StageResolveApplication:          "resolve-application",
	StageResolveBindings:             "resolve-bindings",
	StageResolveExceptionHandling:    "resolve-exception-handling",
	StageResolveCore:                 "resolve-core",
	StageResolveEnvironmentVariables: "resolve-environment-variables",
	StageResolveConfiguration:        "resolve-configuration",
	StageResolveKernels:              "resolve-kernels",
	StageResolveBootstrappers:        "resolve-bootstrappers",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage-%d", int(s))
}
