package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse -> envelope semua response API
type JSONResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, JSONResponse{
		Status:  code >= 200 && code < 300,
		Message: message,
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, err error) {
	RespondErrorWithData(c, code, err, nil)
}

// RespondErrorWithData -> error yang membawa detail untuk client (code, retry_after, current/attempted)
func RespondErrorWithData(c *gin.Context, code int, err error, data interface{}) {
	message := "unknown error"
	if err != nil {
		message = err.Error()
	}
	c.JSON(code, JSONResponse{
		Status:  false,
		Message: message,
		Data:    data,
	})
}
