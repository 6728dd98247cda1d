package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// Errno is an error with a registered code, an HTTP status and an English
// and German message. Predefined values are shared; WithCause and
// WithMessages return copies.
type Errno struct {
	Code      int    `json:"code"`
	HTTP      int    `json:"-"`
	MessageEN string `json:"message"`
	MessageDE string `json:"message_de,omitempty"`

	cause error
}

// New returns an unregistered Errno.
func New(code int, httpStatus int, messageEN, messageDE string) *Errno {
	return &Errno{Code: code, HTTP: httpStatus, MessageEN: messageEN, MessageDE: messageDE}
}

func (e *Errno) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("errno %d: %s", e.Code, e.MessageEN)
	}
	return fmt.Sprintf("errno %d: %s: %v", e.Code, e.MessageEN, e.cause)
}

func (e *Errno) Unwrap() error { return e.cause }

// Is matches any Errno with the same code, so a copy carrying a cause still
// matches the predefined value.
func (e *Errno) Is(target error) bool {
	t, ok := target.(*Errno)
	return ok && t.Code == e.Code
}

// WithCause returns a copy of e wrapping cause.
func (e *Errno) WithCause(cause error) *Errno {
	c := *e
	c.cause = cause
	return &c
}

// WithMessages returns a copy of e with both messages replaced.
func (e *Errno) WithMessages(en, de string) *Errno {
	c := *e
	c.MessageEN, c.MessageDE = en, de
	return &c
}

// Message picks the German message for "de", "de-DE", "de_AT" and so on
// when one is set, and the English message otherwise.
func (e *Errno) Message(lang string) string {
	if e.MessageDE != "" && isGerman(lang) {
		return e.MessageDE
	}
	return e.MessageEN
}

// HTTPStatus returns the response status, 500 when none was set.
func (e *Errno) HTTPStatus() int {
	if e.HTTP == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTP
}

func isGerman(lang string) bool {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if len(lang) > 2 && (lang[2] == '-' || lang[2] == '_') {
		lang = lang[:2]
	}
	return lang == "de"
}

// FromError returns the Errno in err's chain, or ErrInternal wrapping err.
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if stderrors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}

// IsCode reports whether err's chain holds an Errno with code.
func IsCode(err error, code int) bool {
	return GetCode(err) == code
}

// GetCode returns the code of the Errno in err's chain, -1 when there is none.
func GetCode(err error) int {
	var e *Errno
	if stderrors.As(err, &e) {
		return e.Code
	}
	return -1
}
