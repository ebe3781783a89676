// Package httpapi serves the read model and the operator edits over HTTP.
//
// Every response is wrapped in Result: code 2000 with the payload on success,
// code -1 with the error text otherwise. The HTTP status carries the error class.
package httpapi

// Result response envelope
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

// Ok wraps a payload
func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

// Fail carries only the message; result is null
func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message}
}
