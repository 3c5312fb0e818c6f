package api

type Message struct {
	Role    string `json:"role" example:"user"`
	Content string `json:"content" example:"What is the overtime policy?"`
}

type ChatRequest struct {
	Model    string    `json:"model,omitempty" example:"llama3.1"`
	Messages []Message `json:"messages" validate:"required"`
}

type SourceDocument struct {
	File    string `json:"file" example:"employee_handbook.pdf"`
	Snippet string `json:"snippet"`
}

type ChatResponse struct {
	Response string           `json:"response"`
	Sources  []SourceDocument `json:"sources"`
	// Approximate is set when the readability loop hit its pass cap without
	// landing inside the target band.
	Approximate bool `json:"approximate,omitempty"`
}

type BipResponse struct {
	Bip string `json:"bip"`
	// Sources are always present so an empty corpus is observable as [].
	Sources     []SourceDocument `json:"sources"`
	Approximate bool             `json:"approximate,omitempty"`
}

// ErrorResponse is the uniform error shape for every failure the HTTP
// surface reports.
type ErrorResponse struct {
	Detail string `json:"detail" example:"messages cannot be empty"`
}
