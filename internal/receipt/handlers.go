package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-ledger/internal/category"
	"github.com/zombor/receipt-ledger/internal/expense"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

// maxUploadSize allows high-resolution phone photos.
const maxUploadSize = int64(50 << 20)

// maxCommitSize bounds the JSON body of a commit.
const maxCommitSize = int64(1 << 20)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleScanReceipt accepts a receipt upload and returns the categorized
// items for review
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusBadRequest, "Error reading file. Please try again.")
		return
	}

	result, err := s.service.Scan(r.Context(), RawImage{
		Filename:    header.Filename,
		Data:        data,
		ContentType: uploadContentType(header.Header.Get("Content-Type"), header.Filename),
	})
	if err != nil {
		slog.Error("Error scanning receipt", "filename", header.Filename, "error", err)
		writeError(w, scanErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// uploadContentType falls back to the file extension when the part has no
// usable content type.
func uploadContentType(contentType, filename string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

func scanErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrAcquisitionFailed):
		return http.StatusBadRequest
	case errors.Is(err, scanning.ErrExtractionMalformed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scanning.ErrExtractionFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// handleCommit stores the accepted items of a reviewed receipt
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCommitSize)
	var req CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.Commit(r.Context(), req)
	if err != nil {
		slog.Error("Error committing receipt", "error", err)
		if errors.Is(err, ErrInvalidCommit) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	code := http.StatusCreated
	if result.Failed > 0 {
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, result)
}

// handleListExpenses returns expenses, filtered by the user_id query
// parameter when present
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListExpenses(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		slog.Error("Error listing expenses", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetExpense returns a single expense
func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, err := s.service.GetExpense(r.Context(), id)
	if err != nil {
		if IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Expense not found")
			return
		}
		slog.Error("Error getting expense", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleDeleteExpense deletes an expense
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteExpense(r.Context(), id); err != nil {
		if IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Expense not found")
			return
		}
		slog.Error("Error deleting expense", "id", id, "error", err, "unverified", errors.Is(err, expense.ErrDeleteNotVerified))
		writeError(w, http.StatusInternalServerError, "Error deleting expense")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categoriesResponse struct {
	Default      string              `json:"default"`
	Categories   []category.Category `json:"categories"`
	ExpenseTypes []string            `json:"expense_types"`
}

// handleListCategories returns the closed category and type sets
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, categoriesResponse{
		Default:      s.service.DefaultCategory(),
		Categories:   s.service.Categories(),
		ExpenseTypes: ExpenseTypes,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
