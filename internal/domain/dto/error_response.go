package dto

import "time"

// ErrorResponse is the JSON body returned for every non-2xx API response.
//
// It also satisfies the error interface so handlers can pass it around
// before rendering it.
type ErrorResponse struct {
	Message      string    `json:"message" example:"no data found"`
	ErrorDetails string    `json:"error_details,omitempty" example:"sql: connection refused"`
	Timestamp    time.Time `json:"timestamp"`
}

// Error implements the error interface.
func (e ErrorResponse) Error() string {
	if e.ErrorDetails == "" {
		return e.Message
	}
	return e.Message + ": " + e.ErrorDetails
}

// NewErrorResponse builds an ErrorResponse stamped with the current time.
// err may be nil.
func NewErrorResponse(message string, err error) ErrorResponse {
	resp := ErrorResponse{
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		resp.ErrorDetails = err.Error()
	}
	return resp
}
