package model

// Fixed texts fed back into the conversation.
const (
	ToolLimitReachedMessage      = "Tools call limit reached."
	RecursionLimitReachedMessage = "Recursion limit reached."
	BlockedAnswerMessage         = "I'm sorry, but I can't share that answer because it did not pass content validation."
)

// WebSearchRequest is the body sent to the web search collaborator.
type WebSearchRequest struct {
	Question   string `json:"question"`
	TopK       int    `json:"top_k"`
	FetchPages bool   `json:"fetch_pages"`
}

type WebSource struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// WebSearchResponse is the body returned by the web search collaborator.
type WebSearchResponse struct {
	Summary   string      `json:"summary,omitempty"`
	Sources   []WebSource `json:"sources"`
	Reasoning string      `json:"reasoning,omitempty"`
}

// Tool names bound to the orchestrator model.
const (
	ToolQueryInternalData = "query_internal_data"
	ToolSearchWeb         = "search_web"
)
