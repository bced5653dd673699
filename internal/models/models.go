// Package models defines the core data structures for ScreenPipe.
//
// It includes the interview script, per-sender conversation state, candidate
// records and qualification criteria, which are shared across modules.
package models

import "time"

// CompletionSentinel is returned in place of a question once the interview is finished.
// The transport layer treats it as "conversation over, send nothing to the user".
const CompletionSentinel = "__COMPLETE__"

// Response represents an incoming message from a sender on a messaging channel.
type Response struct {
	ID   string `json:"id,omitempty"` // transport message id, used for deduplication
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// AskRequest is the inbound per-turn payload.
type AskRequest struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// AskResponse is the per-turn reply. A nil Reply means "send nothing back".
type AskResponse struct {
	Reply *string `json:"reply"`
}

// ChatLogEntry is one processed (step, message) pair in a sender's append-only log.
type ChatLogEntry struct {
	Sender  string    `json:"sender"`
	Step    string    `json:"step"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// OutreachRequest asks the service to open conversations with a list of numbers.
type OutreachRequest struct {
	Numbers  []string `json:"numbers"`
	Messages []string `json:"messages,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
