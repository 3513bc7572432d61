package dto

// AskMessage is one prior conversation turn.
type AskMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AskRequest is the body of POST /repositories/{id}/ask.
type AskRequest struct {
	Question     string       `json:"question"`
	SelectedFile string       `json:"selected_file,omitempty"`
	SkillLevel   string       `json:"skill_level,omitempty"`
	History      []AskMessage `json:"history,omitempty"`
}

// AskResponse is the generated answer plus the context files behind it.
type AskResponse struct {
	Answer       string   `json:"answer"`
	ContextFiles []string `json:"context_files"`
}
