// Package remote определяет контракт удаленного API заметок и классификацию его ошибок.
package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Class - класс отказа удаленного вызова.
type Class int

// Классы отказов.
const (
	ClassTransient Class = iota
	ClassUnauthorized
	ClassClientRejected
)

// Сигнальные ошибки классов, используются с errors.Is.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrClientRejected    = errors.New("rejected by server")
	ErrTransient         = errors.New("temporarily unavailable")
	ErrMalformedResponse = errors.New("malformed response")
	// ErrSessionExpired - учетные данные непригодны еще до отправки запроса.
	ErrSessionExpired = errors.New("session expired")
)

func (c Class) String() string {
	switch c {
	case ClassUnauthorized:
		return "unauthorized"
	case ClassClientRejected:
		return "client_rejected"
	default:
		return "transient"
	}
}

func (c Class) sentinel() error {
	switch c {
	case ClassUnauthorized:
		return ErrUnauthorized
	case ClassClientRejected:
		return ErrClientRejected
	default:
		return ErrTransient
	}
}

// Error - классифицированный отказ удаленного вызова.
type Error struct {
	Class      Class
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap позволяет errors.Is находить как сигнальную ошибку класса, так и причину.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Class.sentinel()}
	}
	return []error{e.Class.sentinel(), e.Err}
}

// TransportError означает, что запрос не дошел до сервера или ответ не был получен.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError оборачивает сетевую ошибку в классифицированный отказ.
func NewTransportError(op string, err error) *Error {
	return &Error{Class: ClassTransient, Op: op, Err: &TransportError{Op: op, Err: err}}
}

// NewMalformedError сообщает о непригодном успешном ответе. Такой ответ считается временным отказом.
func NewMalformedError(op, reason string) *Error {
	return &Error{Class: ClassTransient, Op: op, Err: fmt.Errorf("%w: %s", ErrMalformedResponse, reason)}
}

// NewSessionExpiredError сообщает о локально истекшей сессии. Запрос к серверу не отправлялся.
func NewSessionExpiredError(op, message string) *Error {
	return &Error{Class: ClassUnauthorized, Op: op, Message: message, Err: ErrSessionExpired}
}

// ClassifyStatus относит HTTP-статус к классу отказа. ok=false для успешных статусов.
func ClassifyStatus(code int) (Class, bool) {
	switch {
	case code >= 200 && code < 300:
		return ClassTransient, false
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ClassUnauthorized, true
	case code >= 400 && code < 500:
		return ClassClientRejected, true
	default:
		return ClassTransient, true
	}
}

// ClassOf возвращает класс произвольной ошибки. Неизвестные ошибки считаются временными.
func ClassOf(err error) Class {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return ClassUnauthorized
	case errors.Is(err, ErrClientRejected):
		return ClassClientRejected
	default:
		return ClassTransient
	}
}

// IsTransport сообщает, что сервер не был достигнут.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
