package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeInvalidQuantity, http.StatusBadRequest},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeAlreadyProcessed, http.StatusConflict},
		{ErrCodeInsufficientStock, http.StatusUnprocessableEntity},
		{ErrCodeStockConflict, http.StatusConflict},
		{ErrCodeLockTimeout, http.StatusServiceUnavailable},
		{ErrCodeLedgerMismatch, http.StatusInternalServerError},
		{ErrCodeRejected, http.StatusConflict},
		{"ERR_INVALID_FACILITY", http.StatusBadRequest},
		{"ERR_EMPTY_REQUEST", http.StatusBadRequest},
		{"ERR_ITEM_NOT_FOUND", http.StatusNotFound},
		{"ERR_BATCH_DISPOSED", http.StatusUnprocessableEntity},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"NOT_FOUND", ErrCodeNotFound},
		{"LOCK_TIMEOUT", ErrCodeLockTimeout},
		{"STOCK_CONFLICT", ErrCodeStockConflict},
		{"REQUEST_ALREADY_PROCESSED", ErrCodeAlreadyProcessed},
		{"INVALID_QUANTITY", ErrCodeInvalidQuantity},
		{"BATCH_DISPOSED", "ERR_BATCH_DISPOSED"},
		{ErrCodeInternal, ErrCodeInternal},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeErrorCode(tt.input))
		})
	}
}

func TestListRequest_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   ListRequest
		want ListRequest
	}{
		{"zero value", ListRequest{}, ListRequest{Page: 1, PageSize: DefaultPageSize}},
		{"kept", ListRequest{Page: 3, PageSize: 50}, ListRequest{Page: 3, PageSize: 50}},
		{"capped", ListRequest{Page: 2, PageSize: 1000}, ListRequest{Page: 2, PageSize: MaxPageSize}},
		{"negative page", ListRequest{Page: -4, PageSize: 10}, ListRequest{Page: 1, PageSize: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestPaged(t *testing.T) {
	resp := Paged([]int{1, 2}, 41, ListRequest{Page: 2, PageSize: 20})
	require.NotNil(t, resp.Meta)
	assert.True(t, resp.Success)
	assert.Equal(t, PageMeta{Total: 41, Page: 2, PageSize: 20, TotalPages: 3}, *resp.Meta)

	empty := Paged(nil, 0, ListRequest{})
	assert.Equal(t, 0, empty.Meta.TotalPages)
	assert.Equal(t, DefaultPageSize, empty.Meta.PageSize)

	exact := Paged(nil, 40, ListRequest{PageSize: 20})
	assert.Equal(t, 2, exact.Meta.TotalPages)
}

func TestInvalid(t *testing.T) {
	resp := Invalid("req-1", []ValidationDetail{
		{Field: "quantity", Message: "Must be greater than 0"},
	})

	body, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.NotContains(t, decoded, "data")
	errInfo := decoded["error"].(map[string]any)
	assert.Equal(t, ErrCodeValidation, errInfo["code"])
	assert.Equal(t, "Request validation failed", errInfo["message"])
	assert.Equal(t, "req-1", errInfo["request_id"])
	assert.Len(t, errInfo["details"], 1)
}

func TestRejected(t *testing.T) {
	resp := Rejected(ErrCodeRejected, "insufficient stock", "", map[string]string{"status": "REJECTED"})
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeRejected, resp.Error.Code)
	assert.Empty(t, resp.Error.RequestID)
	assert.Equal(t, map[string]string{"status": "REJECTED"}, resp.Data)
}
