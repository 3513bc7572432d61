package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/domain/service"
)

// ContextFileChars caps how much of each relevant file is sent to the
// completion backend.
const ContextFileChars = 3000

// historyLimit bounds how many prior conversation turns are replayed.
const historyLimit = 10

// Message is one prior turn of the conversation.
type Message struct {
	role    string
	content string
}

// NewMessage creates a Message.
func NewMessage(role, content string) Message {
	return Message{role: role, content: content}
}

// Role returns the speaker role ("user" or "assistant").
func (m Message) Role() string { return m.role }

// Content returns the message text.
func (m Message) Content() string { return m.content }

// Question is one question-answering request.
type Question struct {
	RepoID       int64
	Text         string
	SelectedPath string
	SkillLevel   string
	History      []Message
}

// Answer is the generated response plus the context files that grounded it.
type Answer struct {
	text         string
	contextFiles []string
}

// Text returns the generated answer.
func (a Answer) Text() string { return a.text }

// ContextFiles returns the paths of the files used as context.
func (a Answer) ContextFiles() []string {
	out := make([]string, len(a.contextFiles))
	copy(out, a.contextFiles)
	return out
}

const askSystemPrompt = `You are a code assistant answering questions about one specific repository.
Ground every answer in the provided file contents; when you reference code, name the file path it came from.
If the context does not contain the answer, say so instead of guessing.`

// Ask answers natural-language questions about an indexed repository by
// assembling ranked file context and handing it to the completion backend.
type Ask struct {
	repos     repo.RepositoryStore
	retrieval *Retrieval
	completer service.Completer
	logger    *slog.Logger
}

// NewAsk creates an Ask service. A nil completer makes Answer fail with
// ErrCompleterNotConfigured.
func NewAsk(repos repo.RepositoryStore, retrieval *Retrieval, completer service.Completer, logger *slog.Logger) *Ask {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ask{repos: repos, retrieval: retrieval, completer: completer, logger: logger}
}

// Answer resolves the question against the repository's index and generates
// a grounded response.
func (s *Ask) Answer(ctx context.Context, q Question) (Answer, error) {
	if s.completer == nil {
		return Answer{}, ErrCompleterNotConfigured
	}

	rec, err := s.repos.FindOne(ctx, repo.WithID(q.RepoID))
	if err != nil {
		return Answer{}, fmt.Errorf("%w: id %d", ErrRepositoryNotFound, q.RepoID)
	}
	if rec.Status() != repo.StatusCompleted {
		return Answer{}, fmt.Errorf("%w: status is %s", ErrNotIndexed, rec.Status())
	}

	retrieved, err := s.retrieval.Rank(ctx, rec, q.Text, q.SelectedPath)
	if err != nil {
		return Answer{}, fmt.Errorf("rank context: %w", err)
	}

	prompt, paths := buildPrompt(rec, q, retrieved)
	text, err := s.completer.Complete(ctx, askSystemPrompt, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	s.logger.Info("question answered",
		slog.Int64("repo_id", q.RepoID),
		slog.Int("context_files", len(paths)),
	)
	return Answer{text: text, contextFiles: paths}, nil
}

// buildPrompt assembles the user prompt: repository identity and insights,
// the primary file in full, each relevant file truncated, prior turns, and
// the question. Returns the prompt and the context file paths in order.
func buildPrompt(rec repo.Repository, q Question, retrieved RetrievalResult) (string, []string) {
	var b strings.Builder
	var paths []string

	fmt.Fprintf(&b, "Repository: %s/%s", rec.Owner(), rec.Name())
	if rec.Description() != "" {
		fmt.Fprintf(&b, ": %s", rec.Description())
	}
	b.WriteString("\n")

	if ins := rec.Insights(); !ins.Empty() {
		b.WriteString("\nRepository insights:\n")
		if ins.Summary() != "" {
			fmt.Fprintf(&b, "Summary: %s\n", ins.Summary())
		}
		if ins.Quickstart() != "" {
			fmt.Fprintf(&b, "Quickstart: %s\n", ins.Quickstart())
		}
	}

	if primary, ok := retrieved.Primary(); ok {
		paths = append(paths, primary.Path())
		fmt.Fprintf(&b, "\nCurrently open file %s:\n```%s\n%s\n```\n",
			primary.Path(), primary.Language(), primary.Content())
	}

	for _, f := range retrieved.Relevant() {
		paths = append(paths, f.Path())
		fmt.Fprintf(&b, "\nFile %s:\n```%s\n%s\n```\n",
			f.Path(), f.Language(), truncate(f.Content(), ContextFileChars))
	}

	history := q.History
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role(), m.Content())
		}
	}

	if q.SkillLevel != "" {
		fmt.Fprintf(&b, "\nAnswer for a %s-level developer.\n", q.SkillLevel)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", q.Text)

	return b.String(), paths
}

// truncate cuts text to at most limit bytes, backing up to a rune boundary
// so the result is always valid UTF-8.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
