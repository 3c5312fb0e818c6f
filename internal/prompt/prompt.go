// Package prompt assembles the mode-specific message lists sent to the
// model provider. Retrieval results become citation blocks; nothing here
// talks to the network.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
)

const contextSnippetLimit = 1200

// genericPromptWords are filler tokens that carry no retrieval signal. A
// question made only of these gets a clarification instead of a model call.
var genericPromptWords = map[string]struct{}{
	"summarize": {}, "summarise": {}, "summary": {},
	"explain": {}, "describe": {}, "help": {},
	"detail": {}, "details": {}, "this": {}, "that": {},
	"information": {}, "info": {}, "please": {},
	"expand": {}, "clarify": {}, "give": {}, "tell": {},
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)
var summaryPattern = regexp.MustCompile(`summari[sz]e|summary`)

// MeaningfulTokens returns the retrieval-worthy tokens of a question:
// at least four characters and not generic filler.
func MeaningfulTokens(text string) []string {
	var out []string
	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len(token) < 4 {
			continue
		}
		if _, generic := genericPromptWords[token]; generic {
			continue
		}
		out = append(out, token)
	}
	return out
}

// ClarificationFor answers a question too vague to retrieve on. The reply
// depends on whether the user asked for a summary of an unnamed "this".
func ClarificationFor(question string) string {
	lower := strings.ToLower(question)
	wantsSummary := summaryPattern.MatchString(lower)
	refersToThis := strings.Contains(lower, "this") || strings.Contains(lower, "that")
	if wantsSummary && refersToThis {
		return "I can summarise an attachment or a specific policy. Upload the file you'd like summarised, " +
			"or mention the topic/document name, and I'll take it from there."
	}
	return "I'm not sure what to summarise yet. Please mention a specific topic or attach a file, and I'll help right away."
}

// GeneralSystem builds the system message for general mode: a numbered
// citation block of retrieved excerpts plus instructions on how to use them.
// With zero results the block instead tells the model to say the
// documentation does not cover the question rather than invent references.
func GeneralSystem(results []ragModel.RetrievalResult) ragModel.ChatMessage {
	lines := make([]string, 0, len(results))
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("[%d] %s: %s", i+1, r.File, truncate(strings.TrimSpace(r.Snippet), contextSnippetLimit)))
	}
	citeBlock := strings.Join(lines, "\n")
	if citeBlock == "" {
		citeBlock = "[No internal references were retrieved for this question. " +
			"If it needs the internal documentation, say that the documentation does not cover it. " +
			"Never invent citations or reference numbers.]"
	}

	content := "You are ChaTCFD, an assistant for The Center for Discovery staff. Prefer the following internal references when they address the question, and cite them inline." +
		" When the excerpts describe frameworks (e.g., the Centerwide 4 C's or SynergE6), explicitly list every component mentioned and summarise each using the provided wording." +
		" Do not omit any bullet or numbered item that appears in the excerpts." +
		" If the user asks for application, coaching, or next steps, combine the referenced material with safe, evidence-informed autism support practices rather than declining." +
		" When you mention an organisation, resource, or programme, include its official website URL using Markdown link format (e.g., [Autism Society](https://autismsociety.org))." +
		" Only reply 'I couldn't find that in the documentation' when no relevant information and no responsible guidance can be given.\n" +
		citeBlock + "\n--- end references ---"

	return ragModel.ChatMessage{Role: ragModel.RoleSystem, Content: content}
}

// Attachment is an uploaded reference document already reduced to text.
type Attachment struct {
	Name    string
	Content string
}

// AttachmentSystem builds the system message used when the user supplied
// their own documents; those outrank the indexed corpora.
func AttachmentSystem(attachments []Attachment) ragModel.ChatMessage {
	lines := make([]string, 0, len(attachments))
	for _, a := range attachments {
		lines = append(lines, fmt.Sprintf("[Attachment: %s] %s", a.Name, truncate(a.Content, contextSnippetLimit)))
	}

	content := "The user provided the following reference documents. Treat them as primary context." +
		" Summarise, paraphrase, or extract from these attachments exactly as requested." +
		" Only fall back to other knowledge if the attachments lack the necessary details.\n" +
		strings.Join(lines, "\n")

	return ragModel.ChatMessage{Role: ragModel.RoleSystem, Content: content}
}

const benefitsHistoryWindow = 6

// BenefitsMessages builds the full two-message payload for benefits mode:
// a closed-book system prompt and one user turn carrying recent history,
// the retrieved context, and the question.
func BenefitsMessages(history []ragModel.ChatMessage, question string, results []ragModel.RetrievalResult) []ragModel.ChatMessage {
	var contextParts []string
	for _, r := range results {
		if s := strings.TrimSpace(r.Snippet); s != "" {
			contextParts = append(contextParts, s)
		}
	}
	contextBlock := strings.Join(contextParts, "\n\n")
	if contextBlock == "" {
		contextBlock = "[No relevant context retrieved]"
	}

	var historyLines []string
	for _, m := range history {
		switch m.Role {
		case ragModel.RoleUser:
			historyLines = append(historyLines, "User: "+m.Content)
		case ragModel.RoleAssistant:
			historyLines = append(historyLines, "Assistant: "+m.Content)
		}
	}
	if len(historyLines) > benefitsHistoryWindow {
		historyLines = historyLines[len(historyLines)-benefitsHistoryWindow:]
	}

	system := "You are the benefits assistant for The Center for Discovery. Answer confidently, " +
		"clearly, and concisely using only the provided context. If information is missing, " +
		"reply with: 'I couldn't find that in the documentation.'" +
		" When you reference an organisation or resource that has a public website, include the official URL using Markdown link format (e.g., [Autism Speaks](https://autismspeaks.org))."

	var user strings.Builder
	if len(historyLines) > 0 {
		user.WriteString("Conversation so far:\n")
		user.WriteString(strings.Join(historyLines, "\n"))
		user.WriteString("\n\n")
	}
	fmt.Fprintf(&user, "Context:\n%s\n\nMost recent question: %s", contextBlock, question)

	return []ragModel.ChatMessage{
		{Role: ragModel.RoleSystem, Content: system},
		{Role: ragModel.RoleUser, Content: user.String()},
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
