// Package response writes the error envelope of the HTTP API. Successful
// handbook answers keep their fixed payload and are written directly.
package response

import (
	"net/http"

	"github.com/kart-io/handbook-rag/pkg/utils/errors"
)

// Response is the JSON envelope {code, http_code, message, data, request_id}.
type Response struct {
	Code      int    `json:"code"`
	HTTPCode  int    `json:"http_code,omitempty"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Success wraps data in a code 0 envelope.
func Success(data any) *Response {
	return &Response{Code: 0, HTTPCode: http.StatusOK, Message: "success", Data: data}
}

// Err builds an English envelope from e.
func Err(e *errors.Errno) *Response {
	return ErrWithLang(e, "en")
}

// ErrWithLang builds an envelope from e with the message in lang. A nil e
// yields Success(nil).
func ErrWithLang(e *errors.Errno, lang string) *Response {
	if e == nil {
		return Success(nil)
	}
	return &Response{Code: e.Code, HTTPCode: e.HTTPStatus(), Message: e.Message(lang)}
}

// WithRequestID sets the request id and returns r.
func (r *Response) WithRequestID(id string) *Response {
	r.RequestID = id
	return r
}

// IsSuccess reports code 0.
func (r *Response) IsSuccess() bool {
	return r.Code == 0
}

// HTTPStatus returns HTTPCode, or the status registered for Code.
func (r *Response) HTTPStatus() int {
	switch {
	case r.HTTPCode != 0:
		return r.HTTPCode
	case r.Code == 0:
		return http.StatusOK
	}
	if e, ok := errors.Lookup(r.Code); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
