// Copyright 2024 Kestrel Engine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package merr defines the engine's coded errors. Callers match on the
// code with Is* helpers instead of string comparison.
package merr

import "fmt"

const (
	// Group 1: internal errors
	ErrInternal uint16 = 20101
	ErrOOM      uint16 = 20103

	// Group 2: invalid input
	ErrBadConfig    uint16 = 20300
	ErrInvalidInput uint16 = 20301

	// Group 3: invalid states
	ErrInvalidState uint16 = 20400
)

// Error is a coded error. The code classifies the failure, the message
// carries the detail.
type Error struct {
	code    uint16
	message string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) Code() uint16 {
	return e.code
}

func newError(code uint16, format string, args ...any) *Error {
	return &Error{
		code:    code,
		message: fmt.Sprintf(format, args...),
	}
}

func NewInternalError(format string, args ...any) *Error {
	return newError(ErrInternal, "internal error: "+format, args...)
}

func NewOOM() *Error {
	return newError(ErrOOM, "out of memory")
}

func NewBadConfig(format string, args ...any) *Error {
	return newError(ErrBadConfig, "invalid configuration: "+format, args...)
}

func NewInvalidInput(format string, args ...any) *Error {
	return newError(ErrInvalidInput, "invalid input: "+format, args...)
}

func NewInvalidState(format string, args ...any) *Error {
	return newError(ErrInvalidState, "invalid state: "+format, args...)
}

func isCode(err error, code uint16) bool {
	e, ok := err.(*Error)
	return ok && e.code == code
}

func IsInternal(err error) bool     { return isCode(err, ErrInternal) }
func IsOOM(err error) bool          { return isCode(err, ErrOOM) }
func IsBadConfig(err error) bool    { return isCode(err, ErrBadConfig) }
func IsInvalidInput(err error) bool { return isCode(err, ErrInvalidInput) }
func IsInvalidState(err error) bool { return isCode(err, ErrInvalidState) }
