package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/promptforge/promptforge/internal/storage"
)

func datasetToResponse(d *storage.Dataset) DatasetResponse {
	return DatasetResponse{ID: d.ID, Name: d.Name, CreatedAt: d.CreatedAt}
}

func datasetItemToResponse(item *storage.DatasetItem) DatasetItemResponse {
	return DatasetItemResponse{
		ID:             item.ID,
		DatasetID:      item.DatasetID,
		InputVariables: item.InputVariables,
		Expected:       item.Expected,
		CreatedAt:      item.CreatedAt,
	}
}

// handleCreateDataset handles POST /api/v1/datasets.
func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var req CreateDatasetRequest
	if !decodeJSON(w, r, s.logger, &req) {
		return
	}

	if req.Name == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("name is required"))

		return
	}

	dataset := &storage.Dataset{ID: uuid.NewString(), Name: req.Name, CreatedAt: time.Now().UTC()}
	if err := s.datasetStore.CreateDataset(r.Context(), dataset); err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to create dataset"))

		return
	}

	writeJSON(w, r, s.logger, http.StatusCreated, datasetToResponse(dataset))
}

// handleListDatasets handles GET /api/v1/datasets.
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	limit := queryIntDefault(r, "limit", defaultPageSize)
	offset := queryIntDefault(r, "offset", 0)

	datasets, err := s.datasetStore.ListDatasets(r.Context(), limit, offset)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to list datasets"))

		return
	}

	resp := DatasetListResponse{Datasets: make([]DatasetResponse, len(datasets)), Limit: limit, Offset: offset}
	for i, d := range datasets {
		resp.Datasets[i] = datasetToResponse(d)
	}

	writeJSON(w, r, s.logger, http.StatusOK, resp)
}

// handleGetDataset handles GET /api/v1/datasets/{id}.
func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	dataset, err := s.datasetStore.GetDataset(r.Context(), pathValue(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrDatasetNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("dataset not found"))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to load dataset"))

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, datasetToResponse(dataset))
}

// handleAddDatasetItem handles POST /api/v1/datasets/{id}/items.
func (s *Server) handleAddDatasetItem(w http.ResponseWriter, r *http.Request) {
	var req AddDatasetItemRequest
	if !decodeJSON(w, r, s.logger, &req) {
		return
	}

	item := &storage.DatasetItem{
		ID:             uuid.NewString(),
		DatasetID:      pathValue(r, "id"),
		InputVariables: req.InputVariables,
		Expected:       req.Expected,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.datasetStore.AddItem(r.Context(), item); err != nil {
		if errors.Is(err, storage.ErrDatasetNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("dataset not found"))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to add dataset item"))

		return
	}

	writeJSON(w, r, s.logger, http.StatusCreated, datasetItemToResponse(item))
}

// handleListDatasetItems handles GET /api/v1/datasets/{id}/items.
func (s *Server) handleListDatasetItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.datasetStore.ListItems(r.Context(), pathValue(r, "id"))
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to list dataset items"))

		return
	}

	resp := DatasetItemListResponse{Items: make([]DatasetItemResponse, len(items))}
	for i, item := range items {
		resp.Items[i] = datasetItemToResponse(item)
	}

	writeJSON(w, r, s.logger, http.StatusOK, resp)
}
