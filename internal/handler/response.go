package handler

import "github.com/gin-gonic/gin"

// Response is the envelope every endpoint returns.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success writes the success envelope with an optional payload.
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Status: "success", Data: data})
}

// Error writes the error envelope.
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Status: "error", Message: message})
}
