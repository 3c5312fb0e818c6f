// Package adapter converts between domain types and the wire contracts in
// internal/api.
package adapter

import (
	"github.com/chatcfd/chatcfd-api/internal/api"
	"github.com/chatcfd/chatcfd-api/internal/bip"
	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/rag"
)

// sourceSnippetLimit keeps response payloads small; the full chunk already
// went to the model, the client only needs enough to locate the passage.
const sourceSnippetLimit = 240

func ToSourceDocuments(results []ragModel.RetrievalResult) []api.SourceDocument {
	out := make([]api.SourceDocument, 0, len(results))
	for _, r := range results {
		snippet := r.Snippet
		if runes := []rune(snippet); len(runes) > sourceSnippetLimit {
			snippet = string(runes[:sourceSnippetLimit])
		}
		out = append(out, api.SourceDocument{File: r.File, Snippet: snippet})
	}
	return out
}

func ToChatResponse(result rag.ChatResult) api.ChatResponse {
	return api.ChatResponse{
		Response:    result.Response,
		Sources:     ToSourceDocuments(result.Sources),
		Approximate: result.Approximate,
	}
}

func ToBipResponse(result bip.Result) api.BipResponse {
	return api.BipResponse{
		Bip:         result.Bip,
		Sources:     ToSourceDocuments(result.Sources),
		Approximate: result.Approximate,
	}
}

func ToMessages(in []api.Message) []ragModel.ChatMessage {
	out := make([]ragModel.ChatMessage, 0, len(in))
	for _, m := range in {
		out = append(out, ragModel.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
