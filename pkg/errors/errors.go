package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeNotFound     Code = "NOT_FOUND"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"
	CodeStorage      Code = "STORAGE_ERROR"
	CodeAuthRejected Code = "AUTH_REJECTED"

	// Order submission outcomes.
	CodeNotAuthenticated    Code = "NOT_AUTHENTICATED"
	CodeEmptyCart           Code = "EMPTY_CART"
	CodeIncompleteProfile   Code = "INCOMPLETE_PROFILE"
	CodeLocationUnavailable Code = "LOCATION_UNAVAILABLE"
	CodeOrderRejected       Code = "ORDER_REJECTED"
	CodeNetwork             Code = "NETWORK_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal error",
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
	CodeStorage: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "changes could not be saved on this device",
	},
	CodeAuthRejected: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "session expired, please sign in again",
	},
	CodeNotAuthenticated: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "sign in to place an order",
	},
	CodeEmptyCart: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "cart is empty",
	},
	CodeIncompleteProfile: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "phone or address is missing from your profile",
		DetailsAllowed: true,
	},
	CodeLocationUnavailable: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		Retryable:     true,
		PublicMessage: "location unavailable, please enable location services",
	},
	CodeOrderRejected: {
		HTTPStatus:     http.StatusBadGateway,
		PublicMessage:  "order was rejected",
		DetailsAllowed: true,
	},
	CodeNetwork: {
		HTTPStatus:    http.StatusServiceUnavailable,
		Retryable:     true,
		PublicMessage: "could not place order, try again later",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
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

// CodeOf returns the code of the first typed error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// HasCode reports whether err carries the provided code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
