package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

// maxUploadSize bounds multipart capture uploads; high-resolution phone
// photos can run large.
const maxUploadSize = int64(50 << 20) // 50MB

// corsError writes an error response with CORS headers set.
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	setCORSHeaders(w)
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps store/repository errors onto HTTP statuses.
func statusFor(err error) int {
	var validation *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleListReceipts returns the store's current receipt list.
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Receipts())
}

// handleCreateReceipt accepts either a multipart capture upload (image or
// PDF, scanned through the vision collaborator) or a JSON draft for manual
// entry.
func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		s.handleCaptureUpload(w, r)
		return
	}

	var draft ReceiptDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.store.AddReceipt(r.Context(), draft); err != nil {
		slog.Error("Error adding receipt", "error", err)
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s.store.Receipts())
}

// handleCaptureUpload runs the capture ingestion pipeline.
func (s *Server) handleCaptureUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		message := "Error parsing form"
		if err.Error() == "http: request body too large" {
			message = "File is too large. Maximum size is 50MB."
		}
		writeJSONError(w, http.StatusBadRequest, message)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeJSONError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeJSONError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB.")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSONError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFromExt(header.Filename)
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	created, err := s.ingestor.ProcessCapture(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error processing capture", "filename", header.Filename, "error", err)
		writeJSONError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func contentTypeFromExt(filename string) string {
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

// handleGetReceipt returns a single receipt from the store.
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	receipt := s.store.GetReceiptByID(id)
	if receipt == nil {
		corsError(w, "Receipt not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleUpdateReceipt applies a partial update.
func (s *Server) handleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}

	var patch ReceiptPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.store.UpdateReceipt(r.Context(), id, patch); err != nil {
		slog.Error("Error updating receipt", "id", id, "error", err)
		writeJSONError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.store.GetReceiptByID(id))
}

// handleDeleteReceipt deletes a receipt.
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	if err := s.store.DeleteReceipt(r.Context(), id); err != nil {
		slog.Error("Error deleting receipt", "id", id, "error", err)
		writeJSONError(w, statusFor(err), "Error deleting receipt")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetReceiptImage returns the captured image for a receipt.
func (s *Server) handleGetReceiptImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	receipt := s.store.GetReceiptByID(id)
	if receipt == nil || receipt.ImageURI == "" {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}

	data, err := s.images.Get(receipt.ImageURI)
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Write(data)
}

// handleInsights returns the recomputed analytics.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.GetSpendingInsights())
}

// handleChatHistory returns the chat log.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ChatMessages())
}

// handleChatMessage records the user's question, asks the assistant, and
// records its answer.
func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeJSONError(w, http.StatusBadRequest, "Message text required")
		return
	}

	s.store.AddChatMessage(req.Text, true)

	answer, err := s.assistant.Answer(r.Context(), req.Text, s.store.Receipts(), s.store.GetSpendingInsights())
	if err != nil {
		slog.Error("Assistant error", "error", err)
		answer = "Sorry, I could not answer that right now."
	}
	reply := s.store.AddChatMessage(answer, false)

	writeJSON(w, http.StatusCreated, reply)
}

// handleClearChat empties the chat log.
func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request) {
	s.store.ClearChatHistory()
	w.WriteHeader(http.StatusNoContent)
}
