package dto

import "net/http"

// Standard API error codes. Handlers should emit these rather than raw
// domain codes so the HTTP contract stays stable.
const (
	// General
	ErrCodeInternal   = "ERR_INTERNAL"
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	ErrCodeNotFound   = "ERR_NOT_FOUND"
	ErrCodeConflict   = "ERR_CONFLICT"

	// Auth
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"

	// Validation
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidState = "ERR_INVALID_STATE"

	// Delivery
	ErrCodeInvalidCode      = "ERR_INVALID_CODE"
	ErrCodeAlreadyConfirmed = "ERR_ALREADY_CONFIRMED"
	ErrCodeAlreadyExists    = "ERR_ALREADY_EXISTS"
	ErrCodeRenderFailed     = "ERR_RENDER_FAILED"
)

// ErrorCodeHTTPStatus maps API error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeBadRequest: http.StatusBadRequest,
	ErrCodeNotFound:   http.StatusNotFound,
	ErrCodeConflict:   http.StatusConflict,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidState: http.StatusConflict,

	// A code absent from both record sets is indistinguishable from one
	// that never existed, so it reads as not found rather than forbidden.
	ErrCodeInvalidCode:      http.StatusNotFound,
	ErrCodeAlreadyConfirmed: http.StatusConflict,
	ErrCodeAlreadyExists:    http.StatusConflict,
	ErrCodeRenderFailed:     http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status for an API error code,
// defaulting to 500 for unknown codes
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping translates domain-layer error codes to API codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeAlreadyExists,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"INVALID_STATE":        ErrCodeInvalidState,
	"CONCURRENCY_CONFLICT": ErrCodeConflict,
	"UNAUTHORIZED":         ErrCodeUnauthorized,
	"FORBIDDEN":            ErrCodeForbidden,

	"INVALID_CODE":      ErrCodeInvalidCode,
	"ALREADY_CONFIRMED": ErrCodeAlreadyConfirmed,

	"INVALID_PRODUCT_NAME": ErrCodeInvalidInput,
	"INVALID_QUANTITY":     ErrCodeInvalidInput,
	"INVALID_PRICE":        ErrCodeInvalidInput,
	"INVALID_ORDER":        ErrCodeInvalidInput,
	"INVALID_CONFIRMER":    ErrCodeInvalidInput,
}

// NormalizeErrorCode converts a domain error code to its API equivalent.
// Codes already in ERR_ form pass through unchanged; anything unknown
// collapses to ERR_INTERNAL.
func NormalizeErrorCode(code string) string {
	if _, ok := ErrorCodeHTTPStatus[code]; ok {
		return code
	}
	if mapped, ok := DomainErrorCodeMapping[code]; ok {
		return mapped
	}
	return ErrCodeInternal
}
