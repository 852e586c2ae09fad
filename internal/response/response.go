// Package response writes the JSON envelope shared by every API endpoint:
// a data payload or an error, optional pagination and request metadata.
package response

import (
	"time"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Data       any         `json:"data"`
	Error      *ErrorBody  `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Metadata   Metadata    `json:"metadata"`
}

// ErrorBody carries a stable code, its Italian message and, for validation
// failures, one message per offending field.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewPagination describes page of a listing holding total items.
func NewPagination(page, perPage, total int) *Pagination {
	p := &Pagination{Page: page, PerPage: perPage, TotalItems: total}
	if perPage > 0 {
		p.TotalPages = (total + perPage - 1) / perPage
	}
	return p
}

type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

func Success(c *gin.Context, status int, data any) {
	c.JSON(status, envelope(c, data, nil, nil))
}

// SuccessWithPagination answers a listing endpoint.
func SuccessWithPagination(c *gin.Context, status int, data any, p *Pagination) {
	c.JSON(status, envelope(c, data, nil, p))
}

func Fail(c *gin.Context, status int, code ErrCode) {
	c.JSON(status, envelope(c, nil, errorBody(code, nil), nil))
}

// FailWithFields attaches per-field details, used for validation errors and
// for the per-dependency readiness report.
func FailWithFields(c *gin.Context, status int, code ErrCode, fields map[string]string) {
	c.JSON(status, envelope(c, nil, errorBody(code, fields), nil))
}

// AbortFail stops the handler chain. Middleware uses it to refuse a request.
func AbortFail(c *gin.Context, status int, code ErrCode) {
	c.AbortWithStatusJSON(status, envelope(c, nil, errorBody(code, nil), nil))
}

func errorBody(code ErrCode, fields map[string]string) *ErrorBody {
	return &ErrorBody{Code: code, Message: GetMessage(code), Fields: fields}
}

func envelope(c *gin.Context, data any, errBody *ErrorBody, p *Pagination) Response {
	return Response{
		Data:       data,
		Error:      errBody,
		Pagination: p,
		Metadata: Metadata{
			RequestID: RequestID(c),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}
