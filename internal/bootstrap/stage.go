package bootstrap

import "fmt"

// Stage is a bootstrap pipeline state.
type Stage int

const (
	NotStarted Stage = iota
	EnvironmentCreated
	ServicesRegistered
	ExtensionPointsRegistered
	ClasspathSeeded
	Ready
	// Failed is absorbing: a failed pipeline never runs again.
	Failed
)

var stageNames = [...]string{
	NotStarted:                "not-started",
	EnvironmentCreated:        "environment-created",
	ServicesRegistered:        "services-registered",
	ExtensionPointsRegistered: "extension-points-registered",
	ClasspathSeeded:           "classpath-seeded",
	Ready:                     "ready",
	Failed:                    "failed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether no further transition can happen.
func (s Stage) Terminal() bool {
	return s == Ready || s == Failed
}

// Status is the observable bootstrap status. Err is set once Stage is Failed.
type Status struct {
	Stage Stage
	Err   error
}

// StageError reports the step that failed.
type StageError struct {
	// Stage is the last stage reached before the failing step.
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("bootstrap failed after %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
