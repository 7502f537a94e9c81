// Package apperr holds the error taxonomy shared by services and the HTTP
// boundary. Services return *Error values; handlers map them to a status
// code and a {success:false, message} body.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindAlreadyExists
	KindRepository
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindRepository:
		return "repository"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind and message so wrapped copies still compare.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func AlreadyExists(message string) *Error {
	return &Error{Kind: KindAlreadyExists, Message: message}
}

func Repository(message string, cause error) *Error {
	return &Error{Kind: KindRepository, Message: message, Err: cause}
}

var (
	ErrTokenMissing   = &Error{Kind: KindUnauthorized, Message: "Token de autenticación requerido"}
	ErrTokenInvalid   = &Error{Kind: KindUnauthorized, Message: "Token de autenticación inválido"}
	ErrTokenExpired   = &Error{Kind: KindUnauthorized, Message: "Token de autenticación expirado"}
	ErrSessionInvalid = &Error{Kind: KindUnauthorized, Message: "Sesión inválida o expirada"}
	ErrUserInactive   = &Error{Kind: KindForbidden, Message: "Usuario inactivo"}
)

// InsufficientPermissions builds the 403 returned when a role lacks a module
// or one of the requested permissions on it.
func InsufficientPermissions(module string, permissions []string) *Error {
	var msg string
	switch {
	case module != "" && len(permissions) > 0:
		msg = fmt.Sprintf("Permisos insuficientes. Se requiere permiso '%s' en el módulo '%s'", strings.Join(permissions, ", "), module)
	case module != "":
		msg = fmt.Sprintf("Acceso denegado al módulo '%s'", module)
	default:
		msg = "Permisos insuficientes para realizar esta acción"
	}
	return &Error{Kind: KindForbidden, Message: msg}
}

func KindOf(err error) (Kind, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return 0, false
}

// HTTPStatus maps an error to the status code the API answers with.
// Anything outside the taxonomy is a 500.
func HTTPStatus(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to show a caller. Repository failures
// and foreign errors never leak their cause.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Error interno del servidor"
}
