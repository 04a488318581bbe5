package conflate

import "fmt"

// ConfigError reports an invalid option value. It is returned before any
// footprint is processed; a run that starts has a valid configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// InputError reports a structural problem with the input footprint set,
// such as a missing or duplicate id. Like ConfigError it is returned
// before any footprint is processed.
type InputError struct {
	FootprintID string
	Reason      string
}

func (e *InputError) Error() string {
	if e.FootprintID == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input: footprint %q: %s", e.FootprintID, e.Reason)
}

// GeometryError reports a footprint whose geometry could not be repaired
// into a simple valid polygon. It is non-fatal: the footprint is excluded
// and listed in the run's skipped report.
type GeometryError struct {
	FootprintID string
	Reason      string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("footprint %s: unrepairable geometry: %s", e.FootprintID, e.Reason)
}
