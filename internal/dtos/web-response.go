package dtos

// Response is the envelope every JSON endpoint answers with. Exactly one
// of Data and Errors is populated.
type Response[T any] struct {
	Message   string         `json:"message"`
	Data      T              `json:"data"`
	Errors    *ErrorResponse `json:"errors,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// NewError wraps a failure in the shared envelope with a nil data slot.
func NewError(message string, errs *ErrorResponse, requestId string) Response[any] {
	return Response[any]{
		Message:   message,
		Errors:    errs,
		RequestID: requestId,
	}
}
