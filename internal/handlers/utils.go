package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/chatcfd/chatcfd-api/internal/api"
	"github.com/chatcfd/chatcfd-api/internal/config"
	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
)

func writeJsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but can't send a clean status code now
		logRH.Error("Error encoding response: %v", err)
	}
}

func WriteErrorResponse(w http.ResponseWriter, httpCode int, detail string) {
	writeJsonResponse(w, httpCode, api.ErrorResponse{Detail: detail})
}

func validateContext(ctx context.Context) bool {
	log := logRH.With("traceId", ctx.Value(config.TRACE_ID_KEY))
	if ctx.Err() != nil {
		log.Warn("context error", "error", ctx.Err())
		return false
	}

	select {
	case <-ctx.Done():
		log.Warn("context cancelled")
		return false
	default:
		return true
	}
}

func getTargetDirectory() (string, string) {
	root, err := os.Getwd()
	if err != nil {
		return "", "Storage Error"
	}

	targetDir := filepath.Join(root, "temporary_data")
	if err := os.MkdirAll(targetDir, 0750); err != nil {
		return "", "Storage Error"
	}
	return targetDir, ""
}

// extractUpload spools a multipart file to disk and runs text extraction on
// it. The temp file is removed before returning.
func extractUpload(fileReader multipart.File, filename string) (string, error) {
	targetDir, errString := getTargetDirectory()
	if errString != "" {
		return "", fmt.Errorf("could not prepare upload directory")
	}

	tempFilePath := filepath.Join(targetDir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(filename)))
	dst, err := os.Create(tempFilePath)
	if err != nil {
		return "", fmt.Errorf("storage error")
	}
	defer os.Remove(tempFilePath)

	if _, err := io.Copy(dst, fileReader); err != nil {
		dst.Close()
		return "", fmt.Errorf("write error")
	}
	dst.Close()

	doc, err := docLoader.Load(tempFilePath, ragModel.CorpusGeneral)
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}
