package response

import "github.com/gin-gonic/gin"

// Codes are the HTTP status times 100 plus a sub-code.
const (
	CodeOK                = 0
	CodeBadRequest        = 40000
	CodeUploadNotFound    = 40001
	CodeNoActiveDocument  = 40002
	CodeDocumentNotReady  = 40003
	CodeNotIndexed        = 40004
	CodeLLMNotConfigured  = 40005
	CodeUnauthorized      = 40100
	CodeSessionNotFound   = 40401
	CodeDocumentNotFound  = 40402
	CodeConflict          = 40900
	CodeUploadClosed      = 40901
	CodeDuplicateComplete = 40902
	CodePayloadTooLarge   = 41300
	CodeInternalServer    = 50000
	CodeProcessingFailed  = 50001
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
