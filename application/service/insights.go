package service

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/repolens/repolens/domain/host"
	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/domain/service"
)

// readmeNames are the case-insensitive basenames recognized as a README.
var readmeNames = map[string]struct{}{
	"readme":     {},
	"readme.md":  {},
	"readme.rst": {},
	"readme.txt": {},
}

// manifestHints maps well-known manifest files to a one-line setup hint
// used by the structural fallback.
var manifestHints = map[string]string{
	"package.json":     "npm install && npm start",
	"go.mod":           "go build ./...",
	"cargo.toml":       "cargo build",
	"requirements.txt": "pip install -r requirements.txt",
	"pyproject.toml":   "pip install .",
	"pom.xml":          "mvn install",
	"gemfile":          "bundle install",
	"makefile":         "make",
	"dockerfile":       "docker build .",
}

const insightsSystemPrompt = `You are a senior engineer summarizing a code repository for a newcomer.
Given the repository README, produce exactly three sections with these markdown headers:
## Summary
## Quickstart
## Contributing
Keep each section short and concrete. If the README says nothing about a section, infer the most likely answer from what it does say.`

// insightReadmeLimit caps how much README text is sent to the completion
// backend.
const insightReadmeLimit = 8000

// Insights derives the summary, quickstart, and contribution guide sections
// for a repository from its README, falling back to a structural summary of
// the file listing when no README exists or derivation fails.
type Insights struct {
	host      host.Client
	completer service.Completer
	logger    *slog.Logger
}

// NewInsights creates an Insights service. A nil completer is allowed; the
// structural fallback is then always used.
func NewInsights(hostClient host.Client, completer service.Completer, logger *slog.Logger) *Insights {
	if logger == nil {
		logger = slog.Default()
	}
	return &Insights{host: hostClient, completer: completer, logger: logger}
}

// Generate derives the insight sections for rec from its file listing.
// Failures never propagate as run failures; the structural fallback makes
// the result total.
func (s *Insights) Generate(ctx context.Context, ref repo.Ref, rec repo.Repository, paths []string) (repo.Insights, error) {
	readmePath := FindReadme(paths)
	if readmePath != "" && s.completer != nil {
		ins, err := s.fromReadme(ctx, ref, rec, readmePath)
		if err == nil {
			return ins, nil
		}
		s.logger.Warn("readme-derived insights failed, using structural fallback",
			slog.Int64("repo_id", rec.ID()),
			slog.String("readme", readmePath),
			slog.String("error", err.Error()),
		)
	}
	return s.structural(rec, paths), nil
}

func (s *Insights) fromReadme(ctx context.Context, ref repo.Ref, rec repo.Repository, readmePath string) (repo.Insights, error) {
	content, ok, err := s.host.FileContent(ctx, ref, readmePath, rec.DefaultBranch())
	if err != nil {
		return repo.Insights{}, fmt.Errorf("fetch readme: %w", err)
	}
	if !ok {
		return repo.Insights{}, fmt.Errorf("readme %q not fetchable", readmePath)
	}

	text := truncate(content.Content(), insightReadmeLimit)

	prompt := fmt.Sprintf("Repository: %s/%s\n\nREADME:\n%s", rec.Owner(), rec.Name(), text)
	answer, err := s.completer.Complete(ctx, insightsSystemPrompt, prompt)
	if err != nil {
		return repo.Insights{}, fmt.Errorf("derive insights: %w", err)
	}

	ins := parseInsightSections(answer)
	if ins.Empty() {
		return repo.Insights{}, fmt.Errorf("completion returned no recognizable sections")
	}
	return ins, nil
}

// structural builds insights from the file listing alone.
func (s *Insights) structural(rec repo.Repository, paths []string) repo.Insights {
	topLevel := make(map[string]struct{})
	var hints []string
	hasContributing := false

	for _, p := range paths {
		if i := strings.Index(p, "/"); i >= 0 {
			topLevel[p[:i]+"/"] = struct{}{}
		} else {
			topLevel[p] = struct{}{}
		}

		base := strings.ToLower(path.Base(p))
		if hint, ok := manifestHints[base]; ok {
			hints = append(hints, hint)
		}
		if strings.HasPrefix(base, "contributing") {
			hasContributing = true
		}
	}

	entries := make([]string, 0, len(topLevel))
	for name := range topLevel {
		entries = append(entries, name)
	}
	sort.Strings(entries)
	if len(entries) > 12 {
		entries = entries[:12]
	}

	summary := fmt.Sprintf("%s/%s contains %d files. Top-level layout: %s.",
		rec.Owner(), rec.Name(), len(paths), strings.Join(entries, ", "))
	if rec.Description() != "" {
		summary = rec.Description() + " " + summary
	}

	quickstart := "No README was found; inspect the repository layout to get started."
	if len(hints) > 0 {
		sort.Strings(hints)
		quickstart = "Detected build files suggest: " + strings.Join(dedupStrings(hints), "; ") + "."
	}

	contribution := "No contribution guide was found. Check the repository's open issues for ways to help."
	if hasContributing {
		contribution = "See the CONTRIBUTING file in the repository for contribution guidelines."
	}

	return repo.NewInsights(summary, quickstart, contribution)
}

// FindReadme returns the shallowest README-like path in the listing, or ""
// when none exists. Root-level READMEs win over nested ones.
func FindReadme(paths []string) string {
	best := ""
	bestDepth := -1
	for _, p := range paths {
		base := strings.ToLower(path.Base(p))
		if _, ok := readmeNames[base]; !ok {
			continue
		}
		depth := strings.Count(p, "/")
		if bestDepth == -1 || depth < bestDepth || (depth == bestDepth && p < best) {
			best = p
			bestDepth = depth
		}
	}
	return best
}

// parseInsightSections splits a completion into the three expected markdown
// sections. Unrecognized output lands entirely in the summary.
func parseInsightSections(text string) repo.Insights {
	text = strings.TrimSpace(text)
	if text == "" {
		return repo.Insights{}
	}

	sections := map[string]*strings.Builder{}
	current := ""
	for _, line := range strings.Split(text, "\n") {
		header := strings.ToLower(strings.TrimSpace(strings.TrimLeft(line, "# ")))
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			switch {
			case strings.HasPrefix(header, "summary"):
				current = "summary"
			case strings.HasPrefix(header, "quickstart"), strings.HasPrefix(header, "quick start"):
				current = "quickstart"
			case strings.HasPrefix(header, "contribut"):
				current = "contributing"
			default:
				current = ""
			}
			if current != "" {
				sections[current] = &strings.Builder{}
				continue
			}
		}
		if current != "" {
			sections[current].WriteString(line)
			sections[current].WriteString("\n")
		}
	}

	get := func(key string) string {
		if b, ok := sections[key]; ok {
			return strings.TrimSpace(b.String())
		}
		return ""
	}

	summary := get("summary")
	quickstart := get("quickstart")
	contributing := get("contributing")
	if summary == "" && quickstart == "" && contributing == "" {
		summary = text
	}
	return repo.NewInsights(summary, quickstart, contributing)
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
