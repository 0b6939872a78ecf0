package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is the stable machine-readable reason attached to every caller-facing error.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// checkout and inventory
	CodeInvalidTier         Code = "INVALID_TIER"
	CodeInvalidProduct      Code = "INVALID_PRODUCT"
	CodeOutOfStock          Code = "OUT_OF_STOCK"
	CodeOrderCreation       Code = "ORDER_CREATION_FAILED"
	CodeGatewayUnavailable  Code = "PAYMENT_GATEWAY_UNAVAILABLE"
	CodeHoldNotFound        Code = "HOLD_NOT_FOUND"
	CodeHoldExpired         Code = "HOLD_EXPIRED"
	CodeInvalidQR           Code = "INVALID_QR"
	CodeTicketAlreadyUsed   Code = "TICKET_ALREADY_USED"
	CodeTicketNotAdmissible Code = "TICKET_NOT_ADMISSIBLE"
)

// Metadata describes how a code is surfaced over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
	CodeUnauthorized:  {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
	CodeForbidden:     {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
	CodeNotFound:      {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
	CodeConflict:      {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
	CodeStateConflict: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true},
	CodeIdempotency:   {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
	CodeRateLimit:     {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded"},
	CodeInternal:      {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
	CodeDependency:    {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},

	CodeInvalidTier:         {HTTPStatus: http.StatusBadRequest, PublicMessage: "ticket tier is not available for this event", DetailsAllowed: true},
	CodeInvalidProduct:      {HTTPStatus: http.StatusBadRequest, PublicMessage: "product is not available", DetailsAllowed: true},
	CodeOutOfStock:          {HTTPStatus: http.StatusConflict, PublicMessage: "not enough tickets remaining", DetailsAllowed: true},
	CodeOrderCreation:       {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "order could not be created"},
	CodeGatewayUnavailable:  {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "payment provider unavailable"},
	CodeHoldNotFound:        {HTTPStatus: http.StatusNotFound, PublicMessage: "reservation not found"},
	CodeHoldExpired:         {HTTPStatus: http.StatusConflict, PublicMessage: "reservation expired"},
	CodeInvalidQR:           {HTTPStatus: http.StatusBadRequest, PublicMessage: "invalid ticket code", DetailsAllowed: true},
	CodeTicketAlreadyUsed:   {HTTPStatus: http.StatusConflict, PublicMessage: "ticket already scanned", DetailsAllowed: true},
	CodeTicketNotAdmissible: {HTTPStatus: http.StatusConflict, PublicMessage: "ticket is not valid for entry", DetailsAllowed: true},
}

// MetadataFor returns the HTTP metadata for code, defaulting to internal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error carried through services and controllers.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts the outermost *Error in err's chain.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
