// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors provides the error types and wrapping helpers shared by
// flowtrace packages.
package errors

import (
	"errors"
	"fmt"
)

// Wrap annotates err with message. It returns nil when err is nil.
//
//	if err := exporter.Shutdown(ctx); err != nil {
//	    return errors.Wrap(err, "shutting down exporter")
//	}
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
//
//	var cfgErr *ConfigError
//	if errors.As(err, &cfgErr) {
//	    logger.Error("bad setting", "key", cfgErr.Key)
//	}
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error with the given message.
func New(message string) error {
	return errors.New(message)
}

// Join combines errs into one error, dropping nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
