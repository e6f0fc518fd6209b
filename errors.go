package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Definition errors.
	ErrNoSteps           = errors.New("pipeline: definition has no steps")
	ErrDuplicateStep     = errors.New("pipeline: duplicate step id")
	ErrMissingDependency = errors.New("pipeline: dependency not declared")
	ErrCycle             = errors.New("pipeline: dependency cycle")

	// Dispatch errors.
	ErrUnknownUnit       = errors.New("pipeline: unknown unit type")
	ErrNoContract        = errors.New("pipeline: unit satisfies no capability contract")
	ErrAmbiguousContract = errors.New("pipeline: unit satisfies more than one capability contract")

	// Context errors.
	ErrOutputTaken = errors.New("pipeline: context output key already has a writer")

	// Run errors.
	ErrStopped = errors.New("pipeline: run interrupted")
)

// ConfigError is the fatal (Tier 1) error raised before or during
// workflow wiring: a malformed DAG, an unregistered unit type, a unit
// whose construction failed, or a contract mismatch. A ConfigError
// always aborts the run with status StatusFailed.
type ConfigError struct {
	// Steps names the offending step ids, when attributable.
	Steps []string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *ConfigError) Error() string {
	if len(e.Steps) == 0 {
		return fmt.Sprintf("pipeline config: %v", e.Err)
	}
	return fmt.Sprintf("pipeline config: steps [%s]: %v", strings.Join(e.Steps, ", "), e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err carries a ConfigError anywhere in
// its chain.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
