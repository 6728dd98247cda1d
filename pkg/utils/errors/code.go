// Package errors provides the coded, bilingual errors of handbook-rag.
//
// A code has the form AABBCCC: AA names the service, BB the category and
// CCC a sequence number within both. The category decides the HTTP status.
//
//	00xxxxx  common errors
//	11xxxxx  cache
//	13xxxxx  vector index
//	20xxxxx  handbook service
//	94xxxxx  embedding and chat providers
package errors

import (
	"fmt"
	"sort"
	"sync"
)

// Service codes (AA).
const (
	ServiceCommon        = 0
	ServiceInfraCache    = 11
	ServiceInfraVector   = 13
	ServiceHandbook      = 20
	ServiceThirdPartyLLM = 94
)

// Category codes (BB).
const (
	CategoryRequest  = 1  // 400
	CategoryResource = 4  // 404
	CategoryInternal = 7  // 500
	CategoryCache    = 9  // 500
	CategoryNetwork  = 10 // 503
	CategoryTimeout  = 11 // 504
)

// MakeCode builds AABBCCC from its parts.
func MakeCode(service, category, sequence int) int {
	return service*100000 + category*1000 + sequence
}

// ParseCode splits a code into service, category and sequence.
func ParseCode(code int) (service, category, sequence int) {
	return code / 100000, (code % 100000) / 1000, code % 1000
}

// IsClientError reports whether code belongs to a 4xx category.
func IsClientError(code int) bool {
	_, category, _ := ParseCode(code)
	return category == CategoryRequest || category == CategoryResource
}

// IsServerError reports whether code belongs to a 5xx category.
func IsServerError(code int) bool {
	_, category, _ := ParseCode(code)
	return category >= CategoryInternal && category <= CategoryTimeout
}

var (
	registryMu sync.RWMutex
	registry   = map[int]*Errno{}
)

// Register records e and panics when its code is taken.
func Register(e *Errno) *Errno {
	registryMu.Lock()
	defer registryMu.Unlock()

	if existing, ok := registry[e.Code]; ok {
		panic(fmt.Sprintf("errno code %d already registered: %s", e.Code, existing.MessageEN))
	}
	registry[e.Code] = e
	return e
}

// Lookup returns the Errno registered under code.
func Lookup(code int) (*Errno, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[code]
	return e, ok
}

// Registered returns every registered Errno ordered by code.
func Registered() []*Errno {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]*Errno, 0, len(registry))
	for _, e := range registry {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
