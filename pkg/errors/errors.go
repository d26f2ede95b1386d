package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeForbidden  Code = "FORBIDDEN"
	CodeNotFound   Code = "NOT_FOUND"
	CodeConflict   Code = "CONFLICT"
	CodeInternal   Code = "INTERNAL_ERROR"
	CodeDependency Code = "DEPENDENCY_ERROR"

	CodeInsufficientFunds        Code = "INSUFFICIENT_FUNDS"
	CodeOverdraftExceeded        Code = "OVERDRAFT_EXCEEDED"
	CodeInvalidTransition        Code = "INVALID_TRANSITION"
	CodeCutoffPassed             Code = "CUTOFF_PASSED"
	CodePastDateNotAllowed       Code = "PAST_DATE_NOT_ALLOWED"
	CodeFreezeLimitExceeded      Code = "FREEZE_LIMIT_EXCEEDED"
	CodeAlreadyFrozen            Code = "ALREADY_FROZEN"
	CodeNotFrozen                Code = "NOT_FROZEN"
	CodeGuestCannotFreeze        Code = "GUEST_CANNOT_FREEZE"
	CodeSubscriptionTerminal     Code = "SUBSCRIPTION_TERMINAL"
	CodeBalanceIntegrityMismatch Code = "BALANCE_INTEGRITY_MISMATCH"
)

type Metadata struct {
	HTTPStatus      int
	Retryable       bool
	PublicMessage   string
	SuggestedAction string
	DetailsAllowed  bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		Retryable:      false,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeForbidden: {
		HTTPStatus:     http.StatusForbidden,
		Retryable:      false,
		PublicMessage:  "access denied",
		DetailsAllowed: false,
	},
	CodeNotFound: {
		HTTPStatus:     http.StatusNotFound,
		Retryable:      false,
		PublicMessage:  "resource not found",
		DetailsAllowed: false,
	},
	CodeConflict: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "conflict detected",
		DetailsAllowed: false,
	},
	CodeInternal: {
		HTTPStatus:     http.StatusInternalServerError,
		Retryable:      true,
		PublicMessage:  "internal server error",
		DetailsAllowed: false,
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
	CodeInsufficientFunds: {
		HTTPStatus:      http.StatusUnprocessableEntity,
		Retryable:       false,
		PublicMessage:   "project balance is insufficient for this operation",
		SuggestedAction: "top up the project balance or reduce the amount",
		DetailsAllowed:  true,
	},
	CodeOverdraftExceeded: {
		HTTPStatus:      http.StatusUnprocessableEntity,
		Retryable:       false,
		PublicMessage:   "operation would exceed the project overdraft limit",
		SuggestedAction: "top up the project balance",
		DetailsAllowed:  true,
	},
	CodeInvalidTransition: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeCutoffPassed: {
		HTTPStatus:      http.StatusUnprocessableEntity,
		Retryable:       false,
		PublicMessage:   "today's orders can no longer be modified",
		SuggestedAction: "modify orders before the project cutoff time",
		DetailsAllowed:  true,
	},
	CodePastDateNotAllowed: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "orders dated in the past cannot be modified",
		DetailsAllowed: true,
	},
	CodeFreezeLimitExceeded: {
		HTTPStatus:      http.StatusUnprocessableEntity,
		Retryable:       false,
		PublicMessage:   "weekly freeze limit reached",
		SuggestedAction: "wait until next week to freeze again",
		DetailsAllowed:  true,
	},
	CodeAlreadyFrozen: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "order is already frozen",
		DetailsAllowed: true,
	},
	CodeNotFrozen: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "order is not frozen",
		DetailsAllowed: true,
	},
	CodeGuestCannotFreeze: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "guest orders cannot be frozen",
		DetailsAllowed: true,
	},
	CodeSubscriptionTerminal: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "subscription is completed and accepts no further changes",
		DetailsAllowed: true,
	},
	CodeBalanceIntegrityMismatch: {
		HTTPStatus:      http.StatusInternalServerError,
		Retryable:       false,
		PublicMessage:   "ledger integrity check failed",
		SuggestedAction: "contact support; the project ledger requires investigation",
		DetailsAllowed:  false,
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

// HasCode reports whether err carries the given typed code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
