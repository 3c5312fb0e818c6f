package ragModel

import (
	"fmt"
	"time"
)

// Corpus names are a closed set; each assistant mode reads from a fixed
// subset of them.
type Corpus string

const (
	CorpusGeneral     Corpus = "general"
	CorpusBenefits    Corpus = "benefits"
	CorpusBipExamples Corpus = "bip_examples"
	CorpusBipPolicies Corpus = "bip_policies"
)

func AllCorpora() []Corpus {
	return []Corpus{CorpusGeneral, CorpusBenefits, CorpusBipExamples, CorpusBipPolicies}
}

func ParseCorpus(s string) (Corpus, error) {
	for _, c := range AllCorpora() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown corpus %q", s)
}

// Mode is a closed tagged variant, not an open string: every switch over it
// handles all three cases or has an explicit default error path.
type Mode int

const (
	ModeGeneral Mode = iota
	ModeBenefits
	ModeBip
)

func (m Mode) String() string {
	switch m {
	case ModeGeneral:
		return "general"
	case ModeBenefits:
		return "benefits"
	case ModeBip:
		return "bip"
	}
	return "unknown"
}

// ParseMode only accepts the chat modes; bip has its own endpoint and is
// never routed through /chat/{mode}.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "general":
		return ModeGeneral, nil
	case "benefits":
		return ModeBenefits, nil
	}
	return 0, fmt.Errorf("unknown chat mode %q", s)
}

// Corpora resolves a mode to the corpora it retrieves from.
func (m Mode) Corpora() []Corpus {
	switch m {
	case ModeGeneral:
		return []Corpus{CorpusGeneral}
	case ModeBenefits:
		return []Corpus{CorpusBenefits}
	case ModeBip:
		return []Corpus{CorpusBipExamples, CorpusBipPolicies}
	}
	return nil
}

// Document is the transient product of extraction. It is discarded after
// chunking; only the derived chunks are indexed.
type Document struct {
	Id          string
	Name        string
	Path        string
	Corpus      Corpus
	Text        string
	ExtractedAt time.Time
}

// Chunk is the unit of embedding and retrieval. Ordinal is the chunk's
// position inside its document and is the deterministic tie-break at query
// time.
type Chunk struct {
	Id      string
	DocId   string
	DocName string
	Corpus  Corpus
	Ordinal int
	Text    string
	Overlap int
	Vector  []float32
}

// RetrievalResult is produced per query and never persisted.
type RetrievalResult struct {
	File    string
	Snippet string
	Score   float64
	Corpus  Corpus
	Ordinal int
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
