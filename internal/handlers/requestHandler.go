package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/chatcfd/chatcfd-api/internal/adapter"
	"github.com/chatcfd/chatcfd-api/internal/adapter/utils"
	"github.com/chatcfd/chatcfd-api/internal/api"
	"github.com/chatcfd/chatcfd-api/internal/bip"
	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/prompt"
	"github.com/chatcfd/chatcfd-api/internal/rag"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm"
	"github.com/chatcfd/chatcfd-api/internal/rag/loader"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

var logRH *logger_i.Logger
var chatService rag.Service
var bipService *bip.Service
var docLoader *loader.Loader

func InitHandlers(chat rag.Service, bipSvc *bip.Service, l *loader.Loader) {
	logRH = logger_i.NewLogger("handlers")
	chatService = chat
	bipService = bipSvc
	docLoader = l
}

// HealthHandler godoc
// @Summary      Liveness probe
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /healthz [get]
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ChatHandler godoc
// @Summary      Answer a chat turn in the given mode
// @Description  Retrieves from the mode's corpus, queries the model provider, and post-processes the answer.
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Param        mode     path      string           true  "Chat mode: general or benefits"
// @Param        request  body      api.ChatRequest  true  "Conversation so far"
// @Success      200      {object}  api.ChatResponse
// @Failure      400      {object}  api.ErrorResponse
// @Failure      502      {object}  api.ErrorResponse
// @Router       /chat/{mode} [post]
func ChatHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logRH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	mode, err := ragModel.ParseMode(utils.GetChiURLParam(r, "mode"))
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	requestData, attachments, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	if len(requestData.Messages) == 0 {
		WriteErrorResponse(w, http.StatusBadRequest, "messages cannot be empty")
		return
	}

	result, err := chatService.Chat(r.Context(), mode, rag.ChatInput{
		Messages:    adapter.ToMessages(requestData.Messages),
		Model:       requestData.Model,
		Attachments: attachments,
	})
	if err != nil {
		writeChatError(w, err)
		return
	}

	writeJsonResponse(w, http.StatusOK, adapter.ToChatResponse(result))
}

// decodeChatRequest reads either a JSON body or a multipart form with a
// "payload" JSON field plus optional "files" attachments.
func decodeChatRequest(w http.ResponseWriter, r *http.Request) (api.ChatRequest, []prompt.Attachment, bool) {
	var requestData api.ChatRequest

	contentType := r.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "multipart/form-data") {
		defer func(body io.ReadCloser) {
			if err := body.Close(); err != nil {
				logRH.Error("Couldn't close the Chat handler reader :", err)
			}
		}(r.Body)

		if err := json.NewDecoder(r.Body).Decode(&requestData); err != nil {
			logRH.Warn("Bad Chat Request: ", "error:", err)
			WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON body")
			return api.ChatRequest{}, nil, false
		}
		return requestData, nil, true
	}

	const maxUploadSize = 32 << 20 //32mb
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "File too large or bad request")
		return api.ChatRequest{}, nil, false
	}

	payload := r.FormValue("payload")
	if payload == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "Missing payload field")
		return api.ChatRequest{}, nil, false
	}
	if err := json.Unmarshal([]byte(payload), &requestData); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return api.ChatRequest{}, nil, false
	}

	var attachments []prompt.Attachment
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			f, err := header.Open()
			if err != nil {
				continue
			}
			text, err := extractUpload(f, header.Filename)
			f.Close()
			if err != nil {
				// An unreadable attachment is skipped, not fatal; the user
				// can still chat without it.
				logRH.Warn("Attachment could not be parsed", "file", header.Filename, "error", err)
				continue
			}
			attachments = append(attachments, prompt.Attachment{Name: header.Filename, Content: strings.TrimSpace(text)})
		}
	}

	return requestData, attachments, true
}

func writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rag.ErrNoUserMessage):
		WriteErrorResponse(w, http.StatusBadRequest, "at least one user message is required")
	case errors.Is(err, llm.ErrUpstreamUnavailable):
		// The provider error text may carry endpoint details; clients get a
		// generic detail.
		WriteErrorResponse(w, http.StatusBadGateway, "model provider unavailable")
	default:
		logRH.Error("Chat request failed", "error", err)
		WriteErrorResponse(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
