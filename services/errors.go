package services

import (
	"errors"
	"fmt"
)

// ErrorKind -> kategori error yang dipetakan ke response oleh layer HTTP / socket
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindInvalidState
	KindRateLimited
	KindValidation
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidState:
		return "InvalidState"
	case KindRateLimited:
		return "RateLimited"
	case KindValidation:
		return "ValidationFailed"
	case KindConflict:
		return "Conflict"
	}
	return "Unknown"
}

// Error -> error domain. errors.Is cocok berdasarkan Code, jadi error dengan detail
// (mis. status sekarang vs tujuan) tetap cocok dengan sentinel-nya.
type Error struct {
	Kind       ErrorKind
	Code       string
	Message    string
	RetryAfter int
	Current    string
	Attempted  string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrTableNotFound     = &Error{Kind: KindNotFound, Code: "TABLE_NOT_FOUND", Message: "table not found"}
	ErrSessionNotFound   = &Error{Kind: KindNotFound, Code: "SESSION_NOT_FOUND", Message: "session not found"}
	ErrOrderNotFound     = &Error{Kind: KindNotFound, Code: "ORDER_NOT_FOUND", Message: "order not found"}
	ErrItemNotFound      = &Error{Kind: KindNotFound, Code: "ORDER_ITEM_NOT_FOUND", Message: "order item not found"}
	ErrCodeNotFound      = &Error{Kind: KindNotFound, Code: "CODE_NOT_FOUND", Message: "no verification code pending"}
	ErrMenuItemNotFound  = &Error{Kind: KindNotFound, Code: "MENU_ITEM_NOT_FOUND", Message: "menu item not found"}
	ErrTableInactive     = &Error{Kind: KindInvalidState, Code: "TABLE_INACTIVE", Message: "table is not accepting sessions"}
	ErrTableFull         = &Error{Kind: KindInvalidState, Code: "TABLE_FULL", Message: "table is at capacity"}
	ErrInvalidSession    = &Error{Kind: KindInvalidState, Code: "INVALID_SESSION", Message: "session is invalid or expired"}
	ErrCodeExpired       = &Error{Kind: KindInvalidState, Code: "CODE_EXPIRED", Message: "verification code expired"}
	ErrCodeMismatch      = &Error{Kind: KindInvalidState, Code: "CODE_MISMATCH", Message: "verification code does not match"}
	ErrInvalidTransition = &Error{Kind: KindInvalidState, Code: "INVALID_TRANSITION", Message: "invalid status transition"}
	ErrOrderNotConfirmed = &Error{Kind: KindInvalidState, Code: "ORDER_NOT_CONFIRMED", Message: "order must be confirmed first"}
	ErrOrderLocked       = &Error{Kind: KindInvalidState, Code: "ORDER_LOCKED", Message: "order can no longer be changed"}
	ErrItemUnavailable   = &Error{Kind: KindInvalidState, Code: "ITEM_UNAVAILABLE", Message: "menu item unavailable"}
	ErrRateLimited       = &Error{Kind: KindRateLimited, Code: "RATE_LIMITED", Message: "too many requests"}
	ErrEmptyOrder        = &Error{Kind: KindValidation, Code: "EMPTY_ORDER", Message: "order has no items"}
	ErrValidation        = &Error{Kind: KindValidation, Code: "VALIDATION_FAILED", Message: "invalid input"}
	ErrConflict          = &Error{Kind: KindConflict, Code: "CONFLICT", Message: "concurrent update, reload and retry"}
)

func rateLimited(retryAfter int) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Code:       ErrRateLimited.Code,
		Message:    fmt.Sprintf("please wait %d seconds before trying again", retryAfter),
		RetryAfter: retryAfter,
	}
}

func invalidTransition(subject, current, attempted string) *Error {
	return &Error{
		Kind:      KindInvalidState,
		Code:      ErrInvalidTransition.Code,
		Message:   fmt.Sprintf("cannot change %s status from %s to %s", subject, current, attempted),
		Current:   current,
		Attempted: attempted,
	}
}

func validation(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    ErrValidation.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

func menuItemNotFound(menuItemID uint) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    ErrMenuItemNotFound.Code,
		Message: fmt.Sprintf("menu item %d not found", menuItemID),
	}
}

func itemUnavailable(menuItemID uint) *Error {
	return &Error{
		Kind:    KindInvalidState,
		Code:    ErrItemUnavailable.Code,
		Message: fmt.Sprintf("menu item %d is unavailable", menuItemID),
	}
}

// AsError -> ambil *Error dari rantai error, nil jika bukan error domain
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
