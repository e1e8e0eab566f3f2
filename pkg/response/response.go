package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ops-tracker-api/internal/models"
	appErrors "github.com/noah-isme/ops-tracker-api/pkg/errors"
)

const outcomeKey = "response_outcome"

// Envelope represents the common response contract.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// Outcome is what a handler declared as its result. Middleware observes it
// after the handler returns instead of intercepting the writer.
type Outcome struct {
	Status int
	Data   interface{}
	Err    *appErrors.Error
}

// Success reports whether the outcome falls in the 2xx range without an error.
func (o Outcome) Success() bool {
	return o.Err == nil && o.Status >= http.StatusOK && o.Status < http.StatusMultipleChoices
}

// OutcomeOf returns the outcome declared through this package, if any.
func OutcomeOf(c *gin.Context) (Outcome, bool) {
	value, exists := c.Get(outcomeKey)
	if !exists {
		return Outcome{}, false
	}
	outcome, ok := value.(Outcome)
	return outcome, ok
}

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.Set(outcomeKey, Outcome{Status: status, Data: data})
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error sends an error response converting the error to the common structure.
// The error is also attached to the gin context for the request logger.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	_ = c.Error(appErr)
	c.Set(outcomeKey, Outcome{Status: appErr.Status, Err: appErr})
	c.JSON(appErr.Status, Envelope{Error: appErr})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Set(outcomeKey, Outcome{Status: http.StatusNoContent})
	c.Status(http.StatusNoContent)
}

// Raw writes a non-envelope payload such as a file export.
func Raw(c *gin.Context, status int, contentType, filename string, body []byte) {
	if filename != "" {
		c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	}
	c.Header("Cache-Control", "no-store")
	c.Set(outcomeKey, Outcome{Status: status})
	c.Data(status, contentType, body)
}
