package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pateln09/splitsies/internal/extraction"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleStatus reports the current parse state
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, message := s.service.Status()
	writeJSON(w, http.StatusOK, map[string]string{
		"state":   string(state),
		"message": message,
	})
}

// handleListReceipts returns all receipts, newest first
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, receipts)
}

// handleUploadReceipt accepts a receipt image and runs extraction
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	// Max 50MB to handle high-resolution phone photos
	maxFormSize := int64(50 << 20)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		jsonError(w, "File is too large. Maximum size is 50MB.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeForExt(header.Filename)
	}

	receipt, err := s.service.ProcessReceipt(data, contentType)
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		_, message := s.service.Status()
		switch {
		case errors.Is(err, ErrParseInFlight):
			jsonError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, extraction.ErrMissingCredential):
			jsonError(w, message, http.StatusServiceUnavailable)
		case errors.Is(err, extraction.ErrServiceUnavailable),
			errors.Is(err, extraction.ErrMalformedResult),
			errors.Is(err, extraction.ErrEncodingFailed):
			jsonError(w, message, http.StatusUnprocessableEntity)
		default:
			jsonError(w, message, http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

func contentTypeForExt(filename string) string {
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
	default:
		return "application/octet-stream"
	}
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		corsError(w, "Receipt not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// handleGetReceiptImage streams the stored image for a receipt
func (s *Server) handleGetReceiptImage(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.GetReceiptImage(r.PathValue("id"))
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt, its items, and its image
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "Receipt not found", http.StatusNotFound)
			return
		}
		slog.Error("Error deleting receipt", "error", err)
		corsError(w, "Error deleting receipt", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateItem edits an item's name and/or price
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  *string `json:"name"`
		Price *string `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	receipt, err := s.service.UpdateItem(r.PathValue("id"), r.PathValue("itemID"), req.Name, req.Price)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "Not found", http.StatusNotFound)
			return
		}
		slog.Error("Error updating item", "error", err)
		corsError(w, "Error updating item", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// handleListFriends returns the friend group
func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	people, err := s.service.ListPeople()
	if err != nil {
		slog.Error("Error listing friends", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, people)
}

// handleAddFriend adds a member to the friend group
func (s *Server) handleAddFriend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Handle string `json:"handle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	person, err := s.service.AddPerson(req.Name, req.Handle)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, person)
}

// handleSplitSummary returns labels, owed totals, and the mismatch flag
func (s *Server) handleSplitSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.SplitSummary(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "Receipt not found", http.StatusNotFound)
			return
		}
		slog.Error("Error computing split summary", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleToggleAssignment flips one person's share of one item
func (s *Server) handleToggleAssignment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PersonID string `json:"person_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	label, err := s.service.ToggleItemAssignment(r.PathValue("id"), r.PathValue("itemID"), req.PersonID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			corsError(w, "Not found", http.StatusNotFound)
		case errors.Is(err, ErrUnknownPerson):
			jsonError(w, err.Error(), http.StatusBadRequest)
		default:
			slog.Error("Error toggling assignment", "error", err)
			corsError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"label": label})
}

// handleAssignEveryone restores an item's split-among-everyone default
func (s *Server) handleAssignEveryone(w http.ResponseWriter, r *http.Request) {
	if err := s.service.AssignItemToEveryone(r.PathValue("id"), r.PathValue("itemID")); err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "Not found", http.StatusNotFound)
			return
		}
		slog.Error("Error clearing assignment", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleEndSplit discards a receipt's split session
func (s *Server) handleEndSplit(w http.ResponseWriter, r *http.Request) {
	s.service.EndSplit(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}
