package response

import (
	"time"

	"hrms/pkg/pagination"
)

// ErrorBody is the error block of a failed response
type ErrorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Response represents the standard API response envelope
type Response struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message,omitempty"`
	Data      any              `json:"data,omitempty"`
	Error     *ErrorBody       `json:"error,omitempty"`
	Meta      *pagination.Meta `json:"meta,omitempty"`
	Timestamp string           `json:"timestamp"`
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

var now = time.Now

func timestamp() string {
	return now().UTC().Format(timestampLayout)
}

// Success returns a standard success response wrapping the data
func Success(data any) Response {
	return Response{
		Success:   true,
		Data:      data,
		Timestamp: timestamp(),
	}
}

// SuccessMessage is Success with a human readable message
func SuccessMessage(message string, data any) Response {
	r := Success(data)
	r.Message = message
	return r
}

// Paginated wraps a page of data together with its meta block
func Paginated(data any, meta *pagination.Meta) Response {
	r := Success(data)
	r.Meta = meta
	return r
}

// Error returns a standard error response
func Error(code, message string, details any) Response {
	return Response{
		Success: false,
		Error: &ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: timestamp(),
	}
}
