package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()

	require.NoError(t, WriteJSON(rec, http.StatusCreated, SuccessResponse("Order placed", map[string]string{"orderNumber": "2610191432070001"})))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Order placed", body.Message)
	assert.Empty(t, body.Error)
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse("Not found", "order not found")
	assert.False(t, resp.Success)
	assert.Equal(t, "order not found", resp.Error)
	assert.Nil(t, resp.Data)
}
