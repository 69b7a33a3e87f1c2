// Package apperror carries the error taxonomy shared by services and the HTTP layer.
package apperror

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput         Kind = "INVALID_INPUT"
	KindConversationNotFound Kind = "CONVERSATION_NOT_FOUND"
	KindUpstreamModel        Kind = "UPSTREAM_MODEL_ERROR"
	KindRetrieval            Kind = "RETRIEVAL_ERROR"
	KindPersistence          Kind = "PERSISTENCE_ERROR"
	KindIngestion            Kind = "INGESTION_ERROR"
	KindBatchNotFound        Kind = "BATCH_NOT_FOUND"
	KindConversationBusy     Kind = "CONVERSATION_BUSY"
)

// Error is a kinded error. Message is safe to show to clients, Err is not.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperror.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Kind-only targets for errors.Is.
var (
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrConversationNotFound = &Error{Kind: KindConversationNotFound}
	ErrUpstreamModel        = &Error{Kind: KindUpstreamModel}
	ErrRetrieval            = &Error{Kind: KindRetrieval}
	ErrPersistence          = &Error{Kind: KindPersistence}
	ErrIngestion            = &Error{Kind: KindIngestion}
	ErrBatchNotFound        = &Error{Kind: KindBatchNotFound}
	ErrConversationBusy     = &Error{Kind: KindConversationBusy}
)

func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

func ConversationNotFound(conversationId string) *Error {
	return &Error{Kind: KindConversationNotFound, Message: "Conversation not found: " + conversationId}
}

func BatchNotFound(batchId string) *Error {
	return &Error{Kind: KindBatchNotFound, Message: "Ingestion batch not found: " + batchId}
}

// ConversationBusy reports that another turn held the conversation for longer
// than the caller was willing to wait.
func ConversationBusy(conversationId string, err error) *Error {
	return &Error{Kind: KindConversationBusy, Message: "Conversation is busy with another turn: " + conversationId, Err: err}
}

func UpstreamModel(message string, err error) *Error {
	return &Error{Kind: KindUpstreamModel, Message: message, Err: err}
}

func Retrieval(message string, err error) *Error {
	return &Error{Kind: KindRetrieval, Message: message, Err: err}
}

func Persistence(message string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: message, Err: err}
}

func Ingestion(message string, err error) *Error {
	return &Error{Kind: KindIngestion, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "" if none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}
