package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetLifecycleIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	ts := setupTestServer(ctx, t)

	var dataset DatasetResponse

	t.Run("CreateDataset", func(t *testing.T) {
		body, err := json.Marshal(CreateDatasetRequest{Name: "classifier-eval"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		ts.server.httpServer.Handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code, "response: %s", rr.Body.String())
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dataset))
		assert.Equal(t, "classifier-eval", dataset.Name)
		assert.NotEmpty(t, dataset.ID)
	})

	t.Run("AddDatasetItem", func(t *testing.T) {
		body, err := json.Marshal(AddDatasetItemRequest{
			InputVariables: map[string]any{"text": "refund my order"},
			Expected:       map[string]any{"label": "billing"},
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets/"+dataset.ID+"/items", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		ts.server.httpServer.Handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code, "response: %s", rr.Body.String())

		var item DatasetItemResponse

		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &item))
		assert.Equal(t, dataset.ID, item.DatasetID)
		assert.Equal(t, "refund my order", item.InputVariables["text"])
	})

	t.Run("ListDatasetItems", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/datasets/"+dataset.ID+"/items", nil)

		rr := httptest.NewRecorder()
		ts.server.httpServer.Handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code, "response: %s", rr.Body.String())

		var list DatasetItemListResponse

		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
		assert.Len(t, list.Items, 1)
	})

	t.Run("GetDataset", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/datasets/"+dataset.ID, nil)

		rr := httptest.NewRecorder()
		ts.server.httpServer.Handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var fetched DatasetResponse

		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fetched))
		assert.Equal(t, dataset.ID, fetched.ID)
	})

	t.Run("GetUnknownDatasetReturns404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/datasets/does-not-exist", nil)

		rr := httptest.NewRecorder()
		ts.server.httpServer.Handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
