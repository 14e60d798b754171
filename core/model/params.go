package model

import (
	"fmt"

	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

// Hyperparameters arrive from Go code and from decoded YAML, so numeric
// values may be any of the common numeric types.

// ParamFloat converts a hyperparameter value to float64.
func ParamFloat(name string, value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, errors.NewValidationError(name, "expected a number", value)
}

// ParamInt converts a hyperparameter value to int. Floats must be integral.
func ParamInt(name string, value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	}
	return 0, errors.NewValidationError(name, "expected an integer", value)
}

// ParamInt64 converts a hyperparameter value to int64.
func ParamInt64(name string, value interface{}) (int64, error) {
	i, err := ParamInt(name, value)
	return int64(i), err
}

// ParamBool converts a hyperparameter value to bool.
func ParamBool(name string, value interface{}) (bool, error) {
	if b, ok := value.(bool); ok {
		return b, nil
	}
	return false, errors.NewValidationError(name, "expected a boolean", value)
}

// ParamString converts a hyperparameter value to string.
func ParamString(name string, value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", errors.NewValidationError(name, "expected a string", value)
}

// UnknownParam is returned by SetParams for unrecognised keys.
func UnknownParam(model, name string) error {
	return errors.NewValidationError(name, "unknown parameter for "+model, name)
}
