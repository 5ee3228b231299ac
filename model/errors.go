package model

import "fmt"

// ConfigError marks a stamp type whose configuration cannot be resolved
type ConfigError struct {
	StampType string
	Reason    string
	Err       error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error for stamp type %q: %s: %v", e.StampType, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error for stamp type %q: %s", e.StampType, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
