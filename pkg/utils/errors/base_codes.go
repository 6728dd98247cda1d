package errors

import "net/http"

// Common errors (service 00).
var (
	ErrRouteNotFound    = NewNotFoundErr(ServiceCommon, 1, "Route not found", "Route nicht gefunden")
	ErrRequestTooLarge  = NewError(ServiceCommon, CategoryRequest, 1, http.StatusRequestEntityTooLarge, "Request body too large", "Anfrage zu groß")
	ErrInternal         = NewInternalErr(ServiceCommon, 1, "Internal server error", "Interner Serverfehler")
	ErrPanic            = NewInternalErr(ServiceCommon, 2, "Unexpected server failure", "Unerwarteter Serverfehler")
)

// Infrastructure errors. They travel as causes in logs and spans; requests
// degrade instead of failing with them.
var (
	ErrCacheUnavailable  = NewCacheErr(ServiceInfraCache, 1, "Cache unavailable", "Cache nicht verfügbar")
	ErrVectorUnavailable = NewNetworkErr(ServiceInfraVector, 1, "Vector index unavailable", "Vektorindex nicht verfügbar")
	ErrVectorQuery       = NewInternalErr(ServiceInfraVector, 1, "Vector index query failed", "Abfrage des Vektorindex fehlgeschlagen")
	ErrVectorUpsert      = NewInternalErr(ServiceInfraVector, 2, "Vector index upsert failed", "Schreiben in den Vektorindex fehlgeschlagen")
	ErrLLMUnavailable    = NewNetworkErr(ServiceThirdPartyLLM, 1, "Language model provider unavailable", "Sprachmodell-Anbieter nicht verfügbar")
)
