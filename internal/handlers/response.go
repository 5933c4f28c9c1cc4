package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Application error codes carried in the envelope next to the HTTP status.
const (
	CodeInvalidInput = 100
	CodeFolderExists = 101
	CodeUnauthorized = 102
	CodeNotFound     = 103
	CodeConflict     = 104
	CodeServerError  = 105
)

// ErrorEnvelope is the uniform error body of every endpoint.
type ErrorEnvelope struct {
	ErrorCode   int    `json:"error_code"`
	Error       string `json:"error"`
	Description string `json:"description"`
}

func InvalidResponse(c *gin.Context, status, code int, name, description string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		ErrorCode:   code,
		Error:       name,
		Description: description,
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
