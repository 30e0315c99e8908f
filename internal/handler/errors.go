package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"genai-image-web/internal/genai/gemini"
)

const (
	msgMissingAPIKey   = "GEMINI_API_KEY is not configured. Set it in the environment or in a .env file."
	msgMissingPrompt   = "Prompt is required"
	msgMissingImage    = "Image is required"
	msgMethodNotAllow  = "Method not allowed"
	msgGenerateFailed  = "Image generation failed"
	msgNoImage         = "Could not get image data"
	msgUnexpected      = "An error occurred during image generation"
	msgInvalidJSON     = "Invalid JSON body"
	msgInvalidForm     = "Invalid multipart form"
	msgNotImage        = "Uploaded file is not an image"
	msgInvalidBase64   = "Image is not valid base64"
	msgUnsupportedBody = "Unsupported content type"
)

// requestError 请求本身的问题（4xx）
type requestError struct {
	status  int
	message string
	details string
}

func (e *requestError) Error() string {
	if e.details != "" {
		return fmt.Sprintf("%s: %s", e.message, e.details)
	}
	return e.message
}

func badRequest(message string) *requestError {
	return &requestError{status: http.StatusBadRequest, message: message}
}

func badRequestWithDetails(message string, err error) *requestError {
	return &requestError{status: http.StatusBadRequest, message: message, details: err.Error()}
}

func tooLarge(limit int64) *requestError {
	return &requestError{
		status:  http.StatusRequestEntityTooLarge,
		message: fmt.Sprintf("Image exceeds the %s size limit", formatBytes(limit)),
	}
}

// errorResult 将错误映射为 HTTP 状态码和响应体
//
//	*requestError         → 其自身状态码
//	ErrMissingAPIKey      → 500
//	*APIError (400..599)  → 透传上游状态码，details 为上游原始响应体
//	*NoImageError         → 500，details 为模型返回的文本
//	其他                  → 500，details 为错误文本，errorType 标明错误类别
func errorResult(err error) (int, GenerationResult) {
	var (
		reqErr   *requestError
		apiErr   *gemini.APIError
		noImage  *gemini.NoImageError
		respErr  *gemini.ResponseError
		fetchErr *gemini.FetchError
	)

	switch {
	case errors.As(err, &reqErr):
		return reqErr.status, GenerationResult{Error: reqErr.message, Details: reqErr.details}
	case errors.Is(err, gemini.ErrMissingAPIKey):
		return http.StatusInternalServerError, GenerationResult{Error: msgMissingAPIKey}
	case errors.As(err, &apiErr):
		status := apiErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}
		return status, GenerationResult{Error: msgGenerateFailed, Details: apiErr.Body, Status: apiErr.StatusCode}
	case errors.As(err, &noImage):
		return http.StatusInternalServerError, GenerationResult{Error: msgNoImage, Details: noImage.Details}
	case errors.As(err, &respErr):
		return http.StatusInternalServerError, GenerationResult{Error: msgNoImage, Details: respErr.Error()}
	case errors.As(err, &fetchErr):
		return http.StatusInternalServerError, GenerationResult{Error: msgNoImage, Details: fetchErr.Error()}
	default:
		return http.StatusInternalServerError, GenerationResult{Error: msgUnexpected, Details: err.Error(), ErrorType: errorType(err)}
	}
}

// errorType 未分类错误的类别：超时与取消单独标出，其余取具体错误类型名
func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	default:
		return fmt.Sprintf("%T", err)
	}
}

func formatBytes(n int64) string {
	const mb = 1024 * 1024
	if n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
