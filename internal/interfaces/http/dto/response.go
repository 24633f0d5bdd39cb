package dto

// Page size bounds of list endpoints
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Response is the JSON envelope of every endpoint. Rejected fulfillments
// carry both Error and Data.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *PageMeta  `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Details   []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail describes one rejected request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// PageMeta describes the page a list response holds
type PageMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// ListRequest is the page query shared by list endpoints
type ListRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=200"`
}

// Normalize fills in page 1 and the default page size and caps the size
func (r ListRequest) Normalize() ListRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	switch {
	case r.PageSize < 1:
		r.PageSize = DefaultPageSize
	case r.PageSize > MaxPageSize:
		r.PageSize = MaxPageSize
	}
	return r
}

// OK wraps data in a success envelope
func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// Paged wraps one page of a list of total items
func Paged(data any, total int64, page ListRequest) Response {
	page = page.Normalize()
	return Response{
		Success: true,
		Data:    data,
		Meta: &PageMeta{
			Total:      total,
			Page:       page.Page,
			PageSize:   page.PageSize,
			TotalPages: int((total + int64(page.PageSize) - 1) / int64(page.PageSize)),
		},
	}
}

// Failure is an error envelope tagged with the request ID
func Failure(code, message, requestID string) Response {
	return Response{Error: &ErrorInfo{Code: code, Message: message, RequestID: requestID}}
}

// Invalid is the 400 body listing the rejected fields
func Invalid(requestID string, details []ValidationDetail) Response {
	resp := Failure(ErrCodeValidation, "Request validation failed", requestID)
	resp.Error.Details = details
	return resp
}

// Rejected carries a terminal but unsuccessful outcome next to its error code
func Rejected(code, message, requestID string, outcome any) Response {
	resp := Failure(code, message, requestID)
	resp.Data = outcome
	return resp
}
