package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	const limit = 64
	small := `{"line_items":[{"quantity":2}]}`
	large := `{"line_items":[` + strings.Repeat(`{"quantity":2},`, 20) + `{"quantity":2}]}`

	tests := []struct {
		name          string
		method        string
		body          string
		contentLength int64
		want          int
	}{
		{"declared size within limit", http.MethodPost, small, int64(len(small)), http.StatusOK},
		{"declared size over limit", http.MethodPost, large, int64(len(large)), http.StatusRequestEntityTooLarge},
		{"undeclared size over limit fails on read", http.MethodPost, large, -1, http.StatusBadRequest},
		{"no body", http.MethodGet, "", 0, http.StatusOK},
	}

	router := gin.New()
	router.Use(RequestID(), BodyLimit(limit))
	read := func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		c.Status(http.StatusOK)
	}
	router.POST("/fulfillments", read)
	router.GET("/fulfillments", read)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/fulfillments", strings.NewReader(tt.body))
			req.ContentLength = tt.contentLength
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusRequestEntityTooLarge {
				assert.Contains(t, w.Body.String(), ErrCodeRequestTooLarge)
			}
		})
	}
}
