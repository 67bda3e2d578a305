//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package errors

type InternalError struct {
	msg  string // message associated to the error
	code int    // error code
}

// ProfilerError associates one of the internal error codes with the error
// that caused it
type ProfilerError struct {
	internal InternalError
	details  error
}

// ErrNone means success
var ErrNone = InternalError{"Success", 0}

// ErrNotFound means that the object/entity requested could not be found
var ErrNotFound = InternalError{"Not found", -1}

// ErrInvalidHeader means we could not get the header
var ErrInvalidHeader = InternalError{"Invalid header", -2}

// ErrFatal means that a fatal error occured
var ErrFatal = InternalError{"Fatal error", -3}

// ErrInvalidConfig means that the requested configuration is inconsistent
var ErrInvalidConfig = InternalError{"Invalid configuration", -4}

// ErrInvalidInput means that data handed over by the caller does not match
// the contract of the operation; nothing was recorded
var ErrInvalidInput = InternalError{"Invalid input", -5}

func New(i InternalError, err error) *ProfilerError {
	e := new(ProfilerError)
	e.details = err
	e.internal = i
	return e
}

func (e *ProfilerError) Is(i InternalError) bool {
	if e == nil {
		return i == ErrNone
	}
	return e.internal == i
}

func (e *ProfilerError) GetInternal() error {
	return e.details
}

func (e *ProfilerError) Error() string {
	if e.details == nil {
		return e.internal.msg
	}
	return e.internal.msg + ": " + e.details.Error()
}

func (e *ProfilerError) Unwrap() error {
	return e.details
}

// Code returns the numerical code of the error
func (e *ProfilerError) Code() int {
	return e.internal.code
}
