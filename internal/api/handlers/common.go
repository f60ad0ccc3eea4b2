package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/careerforge/careerforge/internal/utils"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Success bool       `json:"success"`
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

// Envelope is the success body: {success, message?, data}.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
		})
		return
	}

	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

func requireUserID(c *gin.Context) (string, bool) {
	if v, ok := c.Get("user_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}

// readFormFile reads an optional multipart file up to max bytes. A missing
// field returns (nil, "", nil).
func readFormFile(c *gin.Context, field string, max int64) ([]byte, *multipart.FileHeader, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if fh.Size > max {
		return nil, fh, errTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fh, err
	}
	defer f.Close()

	b, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return nil, fh, err
	}
	if int64(len(b)) > max {
		return nil, fh, errTooLarge
	}
	return b, fh, nil
}

var errTooLarge = errors.New("file too large")

func contentType(fh *multipart.FileHeader, data []byte) string {
	if fh != nil {
		if ct := fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
			return ct
		}
	}
	return http.DetectContentType(data)
}
