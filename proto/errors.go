package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type WebRPCError struct {
	Name       string `json:"error"`
	Code       int    `json:"code"`
	Message    string `json:"msg"`
	Cause      string `json:"cause,omitempty"`
	HTTPStatus int    `json:"status"`

	cause error
}

var _ error = WebRPCError{}

func (e WebRPCError) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("%s %d: %s: %s", e.Name, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %d: %s", e.Name, e.Code, e.Message)
}

func (e WebRPCError) Is(target error) bool {
	if target == nil {
		return false
	}
	if rpcErr, ok := target.(WebRPCError); ok {
		return rpcErr.Code == e.Code
	}
	return errors.Is(e.cause, target)
}

func (e WebRPCError) Unwrap() error {
	return e.cause
}

func (e WebRPCError) WithCause(cause error) WebRPCError {
	err := e
	err.cause = cause
	err.Cause = cause.Error()
	return err
}

func (e WebRPCError) WithCausef(format string, args ...interface{}) WebRPCError {
	cause := fmt.Errorf(format, args...)
	err := e
	err.cause = cause
	err.Cause = cause.Error()
	return err
}

// RespondWithError writes err as the standard JSON error envelope. Any
// error that is not a WebRPCError is reported as ErrInternalError with
// the original error as its cause.
func RespondWithError(w http.ResponseWriter, err error) {
	rpcErr, ok := err.(WebRPCError)
	if !ok {
		rpcErr = ErrInternalError.WithCause(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rpcErr.HTTPStatus)

	respBody, _ := json.Marshal(rpcErr)
	_, _ = w.Write(respBody)
}

// Errors
var (
	ErrInvalidRequest           = WebRPCError{Code: 1000, Name: "InvalidRequest", Message: "invalid request parameters", HTTPStatus: http.StatusBadRequest}
	ErrUnknownRequest           = WebRPCError{Code: 1001, Name: "UnknownRequest", Message: "unknown or already resolved request", HTTPStatus: http.StatusNotFound}
	ErrDuplicateIdentity        = WebRPCError{Code: 1002, Name: "DuplicateIdentity", Message: "identity is already registered", HTTPStatus: http.StatusConflict}
	ErrRequestOwnershipConflict = WebRPCError{Code: 1003, Name: "RequestOwnershipConflict", Message: "request id is owned by another user", HTTPStatus: http.StatusConflict}
	ErrUpstreamError            = WebRPCError{Code: 2000, Name: "UpstreamError", Message: "trust network request failed", HTTPStatus: http.StatusBadGateway}
	ErrOnboardingFailed         = WebRPCError{Code: 2001, Name: "OnboardingFailed", Message: "identity onboarding failed", HTTPStatus: http.StatusBadGateway}
	ErrPartialOnboarding        = WebRPCError{Code: 2002, Name: "PartialOnboarding", Message: "identity registered upstream but not locally", HTTPStatus: http.StatusConflict}
	ErrDatabaseError            = WebRPCError{Code: 3000, Name: "DatabaseError", Message: "database error", HTTPStatus: http.StatusInternalServerError}
	ErrInternalError            = WebRPCError{Code: 5000, Name: "InternalError", Message: "internal server error", HTTPStatus: http.StatusInternalServerError}
)
