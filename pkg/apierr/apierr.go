// Package apierr defines the typed errors returned by the HTTP API.
//
// Every error has a stable code "<kind>:<surface>" (e.g. "forbidden:chat"),
// an HTTP status derived from the kind and a fixed human message.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Kind classifies an error.
type Kind string

const (
	BadRequest   Kind = "bad_request"
	Unauthorized Kind = "unauthorized"
	Forbidden    Kind = "forbidden"
	NotFound     Kind = "not_found"
	RateLimit    Kind = "rate_limit"
	Offline      Kind = "offline"
)

// Surface names the part of the API an error belongs to.
type Surface string

const (
	SurfaceAPI      Surface = "api"
	SurfaceAuth     Surface = "auth"
	SurfaceChat     Surface = "chat"
	SurfaceDocument Surface = "document"
	SurfaceStream   Surface = "stream"
	SurfaceUpload   Surface = "upload"
	SurfaceDatabase Surface = "database"
)

var statuses = map[Kind]int{
	BadRequest:   http.StatusBadRequest,
	Unauthorized: http.StatusUnauthorized,
	Forbidden:    http.StatusForbidden,
	NotFound:     http.StatusNotFound,
	RateLimit:    http.StatusTooManyRequests,
	Offline:      http.StatusServiceUnavailable,
}

var messages = map[string]string{
	"bad_request:api":       "The request couldn't be processed. Please check your input and try again.",
	"unauthorized:auth":     "You need to sign in before continuing.",
	"forbidden:auth":        "Your account does not have access to this feature.",
	"rate_limit:chat":       "You have exceeded your maximum number of messages for the day. Please try again later.",
	"not_found:chat":        "The requested chat was not found. Please check the chat ID and try again.",
	"forbidden:chat":        "This chat belongs to another user. Please check the chat ID and try again.",
	"unauthorized:chat":     "You need to sign in to view this chat. Please sign in and try again.",
	"offline:chat":          "We're having trouble sending your message. Please check your internet connection and try again.",
	"not_found:stream":      "The requested stream was not found. Please try again later.",
	"not_found:document":    "The requested document was not found. Please check the document ID and try again.",
	"forbidden:document":    "This document belongs to another user. Please check the document ID and try again.",
	"unauthorized:document": "You need to sign in to view this document. Please sign in and try again.",
	"bad_request:document":  "The request to create or update the document was invalid. Please check your input and try again.",
	"bad_request:upload":    "The file could not be uploaded. Please check its type and size and try again.",
	"unauthorized:upload":   "You need to sign in to upload files.",
}

const defaultMessage = "Something went wrong. Please try again later."

// Error is an API error. Cause is an optional human-readable detail.
type Error struct {
	Kind    Kind
	Surface Surface
	Cause   string
}

// New returns an error of kind k on surface s.
func New(k Kind, s Surface) *Error {
	return &Error{Kind: k, Surface: s}
}

// Newf returns an error with a formatted cause.
func Newf(k Kind, s Surface, format string, args ...any) *Error {
	return &Error{Kind: k, Surface: s, Cause: fmt.Sprintf(format, args...)}
}

// Code returns "<kind>:<surface>".
func (e *Error) Code() string {
	return string(e.Kind) + ":" + string(e.Surface)
}

// Status returns the HTTP status for the error's kind.
func (e *Error) Status() int {
	if s, ok := statuses[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Message returns the fixed human message for the error's code.
func (e *Error) Message() string {
	if m, ok := messages[e.Code()]; ok {
		return m
	}
	return defaultMessage
}

func (e *Error) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("apierr: %s: %s", e.Code(), e.Cause)
	}
	return "apierr: " + e.Code()
}

// Body is the JSON error response.
type Body struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// Body returns the response body. Database errors do not expose their
// cause.
func (e *Error) Body() Body {
	b := Body{Code: e.Code(), Message: e.Message(), Cause: e.Cause}
	if e.Surface == SurfaceDatabase {
		b.Cause = ""
	}
	return b
}

// Write renders the error as a JSON response.
func (e *Error) Write(w http.ResponseWriter) {
	writeJSON(w, e.Status(), e.Body())
}

// From returns the *Error in err's chain, or nil.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Write renders err. An *Error in the chain is written as is; anything
// else is logged and written as a 500.
func Write(w http.ResponseWriter, err error) {
	if e := From(err); e != nil {
		e.Write(w)
		return
	}
	slog.Error("apierr: internal error", "error", err)
	writeJSON(w, http.StatusInternalServerError, Body{Code: "internal", Message: defaultMessage})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
