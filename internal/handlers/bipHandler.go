package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/chatcfd/chatcfd-api/internal/adapter"
	"github.com/chatcfd/chatcfd-api/internal/bip"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm"
	"github.com/chatcfd/chatcfd-api/internal/rag/loader"
)

// BipGenerateHandler godoc
// @Summary      Draft a Behavior Intervention Plan
// @Description  Takes a structured intake form plus an optional FBA document and returns a grounded draft plan.
// @Tags         BIP
// @Accept       multipart/form-data
// @Produce      json
// @Param        name       formData  string  true   "Student name"
// @Param        age        formData  int     true   "Student age"
// @Param        diagnosis  formData  string  true   "Primary diagnosis"
// @Param        behavior   formData  string  true   "Target behavior"
// @Param        setting    formData  string  true   "Setting where the behavior occurs"
// @Param        trigger    formData  string  true   "Known trigger"
// @Param        notes      formData  string  false  "Additional notes"
// @Param        model      formData  string  false  "Model override"
// @Param        fba_file   formData  file    false  "Functional Behavior Assessment (PDF, DOCX, or TXT)"
// @Success      200  {object}  api.BipResponse
// @Failure      400  {object}  api.ErrorResponse
// @Failure      502  {object}  api.ErrorResponse
// @Router       /bip/generate [post]
func BipGenerateHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logRH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	const maxUploadSize = 32 << 20 //32mb
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "File too large or bad request")
		return
	}

	age, err := strconv.Atoi(r.FormValue("age"))
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "age must be a number")
		return
	}

	req := bip.Request{
		Name:      r.FormValue("name"),
		Age:       age,
		Diagnosis: r.FormValue("diagnosis"),
		Behavior:  r.FormValue("behavior"),
		Setting:   r.FormValue("setting"),
		Trigger:   r.FormValue("trigger"),
		Notes:     r.FormValue("notes"),
		Model:     r.FormValue("model"),
	}

	fileReader, fileMetadata, err := r.FormFile("fba_file")
	if err == nil {
		defer fileReader.Close()
		text, extractErr := extractUpload(fileReader, fileMetadata.Filename)
		if extractErr != nil {
			if errors.Is(extractErr, loader.ErrUnsupported) {
				WriteErrorResponse(w, http.StatusBadRequest, "Unsupported file type. Use PDF, DOCX, or TXT.")
				return
			}
			logRH.Warn("FBA upload could not be parsed", "file", fileMetadata.Filename, "error", extractErr)
			WriteErrorResponse(w, http.StatusBadRequest, "Could not read the uploaded file")
			return
		}
		req.FbaText = strings.TrimSpace(text)
	}

	result, err := bipService.Generate(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, bip.ErrInvalidRequest):
			WriteErrorResponse(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, llm.ErrUpstreamUnavailable):
			WriteErrorResponse(w, http.StatusBadGateway, "model provider unavailable")
		default:
			logRH.Error("BIP generation failed", "error", err)
			WriteErrorResponse(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	writeJsonResponse(w, http.StatusOK, adapter.ToBipResponse(result))
}
