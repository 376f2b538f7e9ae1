package enums

import "fmt"

// ValidationSource records which authority produced a validation record.
type ValidationSource string

const (
	ValidationSourceRules  ValidationSource = "rules"
	ValidationSourceOracle ValidationSource = "oracle"
	ValidationSourceHuman  ValidationSource = "human"
)

var validValidationSources = []ValidationSource{
	ValidationSourceRules,
	ValidationSourceOracle,
	ValidationSourceHuman,
}

// String implements fmt.Stringer.
func (v ValidationSource) String() string {
	return string(v)
}

// IsValid reports whether the value is a known ValidationSource.
func (v ValidationSource) IsValid() bool {
	for _, candidate := range validValidationSources {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseValidationSource converts raw input into a ValidationSource.
func ParseValidationSource(value string) (ValidationSource, error) {
	for _, candidate := range validValidationSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid validation source %q", value)
}
