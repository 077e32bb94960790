// Package xerrors defines the error taxonomy of the pipeline. Fatal
// errors (config, validation) abort before any output exists; the rest
// are isolated per listing or per asset and end up in the metadata CSV.
package xerrors

import (
	"errors"
	"fmt"
)

var (
	ErrConfig       = errors.New("config error")
	ErrValidation   = errors.New("validation error")
	ErrNavigation   = errors.New("navigation error")
	ErrMediaFetch   = errors.New("media fetch error")
	ErrMediaConvert = errors.New("media convert error")
)

func Config(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Navigation(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrNavigation, fmt.Sprintf(format, args...), err)
}

func MediaFetch(err error, url string) error {
	return fmt.Errorf("%w: %s: %w", ErrMediaFetch, url, err)
}

func MediaConvert(err error, path string) error {
	return fmt.Errorf("%w: %s: %w", ErrMediaConvert, path, err)
}

// Fatal reports whether err must abort the run before output is written.
func Fatal(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrValidation)
}
