package prompt

import (
	"strings"
	"testing"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
)

func TestMeaningfulTokens(t *testing.T) {
	tests := []struct {
		question string
		expected int
	}{
		{"please summarize this", 0},
		{"explain that info", 0},
		{"what is the overtime policy", 3}, //what, overtime, policy
		{"tell me", 0},
		{"FMLA leave", 1}, //leave; fmla is 4 chars and not generic
	}

	for _, tt := range tests {
		got := MeaningfulTokens(tt.question)
		if tt.question == "FMLA leave" {
			// both tokens qualify
			if len(got) != 2 {
				t.Errorf("MeaningfulTokens(%q) = %v", tt.question, got)
			}
			continue
		}
		if len(got) != tt.expected {
			t.Errorf("MeaningfulTokens(%q) = %v, want %d tokens", tt.question, got, tt.expected)
		}
	}
}

func TestClarificationFor(t *testing.T) {
	vagueSummary := ClarificationFor("summarize this")
	if !strings.Contains(vagueSummary, "Upload the file") {
		t.Errorf("summary clarification wrong: %q", vagueSummary)
	}

	vague := ClarificationFor("help please")
	if !strings.Contains(vague, "mention a specific topic") {
		t.Errorf("generic clarification wrong: %q", vague)
	}
}

func TestGeneralSystem_NumbersCitations(t *testing.T) {
	msg := GeneralSystem([]ragModel.RetrievalResult{
		{File: "handbook.pdf", Snippet: "Overtime requires manager approval."},
		{File: "pto.docx", Snippet: "PTO accrues monthly."},
	})

	if msg.Role != ragModel.RoleSystem {
		t.Errorf("role = %q", msg.Role)
	}
	if !strings.Contains(msg.Content, "[1] handbook.pdf: Overtime requires manager approval.") {
		t.Errorf("first citation missing:\n%s", msg.Content)
	}
	if !strings.Contains(msg.Content, "[2] pto.docx:") {
		t.Errorf("second citation missing:\n%s", msg.Content)
	}
	if !strings.Contains(msg.Content, "--- end references ---") {
		t.Error("references block not terminated")
	}
}

func TestGeneralSystem_EmptyResultsStateLimitation(t *testing.T) {
	msg := GeneralSystem(nil)
	if msg.Role != ragModel.RoleSystem {
		t.Errorf("role = %q", msg.Role)
	}
	if !strings.Contains(msg.Content, "No internal references were retrieved") {
		t.Errorf("limitation instruction missing:\n%s", msg.Content)
	}
	if !strings.Contains(msg.Content, "Never invent citations") {
		t.Errorf("fabrication warning missing:\n%s", msg.Content)
	}
	if strings.Contains(msg.Content, "[1]") {
		t.Errorf("citation entries present for empty retrieval:\n%s", msg.Content)
	}
	if !strings.Contains(msg.Content, "--- end references ---") {
		t.Error("references block not terminated")
	}
}

func TestGeneralSystem_TruncatesLongSnippets(t *testing.T) {
	long := strings.Repeat("a", 5000)
	msg := GeneralSystem([]ragModel.RetrievalResult{{File: "big.pdf", Snippet: long}})
	if len(msg.Content) > 3000 {
		t.Errorf("snippet not truncated, content length %d", len(msg.Content))
	}
	if !strings.Contains(msg.Content, "…") {
		t.Error("truncation marker missing")
	}
}

func TestBenefitsMessages_EmptyRetrievalStillCallsModel(t *testing.T) {
	msgs := BenefitsMessages(nil, "What dental plans are offered?", nil)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if !strings.Contains(msgs[1].Content, "[No relevant context retrieved]") {
		t.Errorf("empty-context marker missing:\n%s", msgs[1].Content)
	}
	if !strings.Contains(msgs[0].Content, "I couldn't find that in the documentation") {
		t.Error("closed-book instruction missing from system prompt")
	}
}

func TestBenefitsMessages_HistoryWindow(t *testing.T) {
	var history []ragModel.ChatMessage
	for i := 0; i < 10; i++ {
		history = append(history,
			ragModel.ChatMessage{Role: ragModel.RoleUser, Content: "question " + string(rune('a'+i))},
			ragModel.ChatMessage{Role: ragModel.RoleAssistant, Content: "answer " + string(rune('a'+i))},
		)
	}

	msgs := BenefitsMessages(history, "latest question", nil)
	body := msgs[1].Content
	if strings.Contains(body, "question a") {
		t.Error("history window kept turns older than the last six lines")
	}
	if !strings.Contains(body, "answer j") {
		t.Error("most recent history line missing")
	}
	if !strings.Contains(body, "Most recent question: latest question") {
		t.Error("question missing from payload")
	}
}

func TestAttachmentSystem(t *testing.T) {
	msg := AttachmentSystem([]Attachment{{Name: "iep.pdf", Content: "Goals for the year."}})
	if !strings.Contains(msg.Content, "[Attachment: iep.pdf] Goals for the year.") {
		t.Errorf("attachment block missing:\n%s", msg.Content)
	}
	if !strings.Contains(msg.Content, "primary context") {
		t.Error("attachment priority instruction missing")
	}
}
