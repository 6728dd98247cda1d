package errors

import (
	"fmt"
	"net/http"
)

// categoryStatus is the HTTP status every category maps to.
var categoryStatus = map[int]int{
	CategoryRequest:  http.StatusBadRequest,
	CategoryResource: http.StatusNotFound,
	CategoryInternal: http.StatusInternalServerError,
	CategoryCache:    http.StatusInternalServerError,
	CategoryNetwork:  http.StatusServiceUnavailable,
	CategoryTimeout:  http.StatusGatewayTimeout,
}

// NewError registers an Errno with an explicit HTTP status. It panics on an
// out-of-range code part, a missing English message or a duplicate code, so
// mistakes surface at package init.
func NewError(service, category, sequence int, httpStatus int, messageEN, messageDE string) *Errno {
	switch {
	case service < 0 || service > 99:
		panic(fmt.Sprintf("errors: service %d out of range 0-99", service))
	case category < 0 || category > 99:
		panic(fmt.Sprintf("errors: category %d out of range 0-99", category))
	case sequence < 0 || sequence > 999:
		panic(fmt.Sprintf("errors: sequence %d out of range 0-999", sequence))
	case messageEN == "":
		panic("errors: english message is required")
	}
	return Register(New(MakeCode(service, category, sequence), httpStatus, messageEN, messageDE))
}

func define(service, category, sequence int, en, de string) *Errno {
	return NewError(service, category, sequence, categoryStatus[category], en, de)
}

// NewRequestErr registers a 400 error.
func NewRequestErr(service, sequence int, en, de string) *Errno {
	return define(service, CategoryRequest, sequence, en, de)
}

// NewNotFoundErr registers a 404 error.
func NewNotFoundErr(service, sequence int, en, de string) *Errno {
	return define(service, CategoryResource, sequence, en, de)
}

// NewInternalErr registers a 500 error.
func NewInternalErr(service, sequence int, en, de string) *Errno {
	return define(service, CategoryInternal, sequence, en, de)
}

// NewCacheErr registers a 500 cache error.
func NewCacheErr(service, sequence int, en, de string) *Errno {
	return define(service, CategoryCache, sequence, en, de)
}

// NewNetworkErr registers a 503 error.
func NewNetworkErr(service, sequence int, en, de string) *Errno {
	return define(service, CategoryNetwork, sequence, en, de)
}

// NewTimeoutErr registers a 504 error.
func NewTimeoutErr(service, sequence int, en, de string) *Errno {
	return define(service, CategoryTimeout, sequence, en, de)
}
