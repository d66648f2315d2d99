// Package tags provides AI tag suggestion for notes.
package tags

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/mindvault/mindvault/ai"
)

// DefaultMaxTags bounds a suggestion response; the prompt asks for 3-5.
const DefaultMaxTags = 5

// Suggester provides tag suggestions for note content.
type Suggester interface {
	// Suggest returns ranked tag suggestions for a draft note.
	Suggest(ctx context.Context, req *SuggestRequest) ([]Suggestion, error)
}

// SuggestRequest contains parameters for tag suggestion.
type SuggestRequest struct {
	Title   string
	Content string
	MaxTags int
}

// Suggestion represents a single tag suggestion.
type Suggestion struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

type suggester struct {
	llm ai.LLMService
}

// NewSuggester creates a Suggester backed by the given LLM service.
func NewSuggester(llm ai.LLMService) Suggester {
	return &suggester{llm: llm}
}

const suggestPromptTemplate = `Analyze this note and suggest 3-5 relevant tags.

Title: %s
Content: %s

Return ONLY a JSON array with this exact format:
[{"tag": "example", "confidence": 0.95}]

Rules:
- Tags should be single words or short phrases
- Confidence should be between 0.0 and 1.0
- Return 3-5 tags maximum
- No explanation, just the JSON array`

func (s *suggester) Suggest(ctx context.Context, req *SuggestRequest) ([]Suggestion, error) {
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Content) == "" {
		return nil, errors.New("title or content is required")
	}

	maxTags := req.MaxTags
	if maxTags <= 0 || maxTags > DefaultMaxTags {
		maxTags = DefaultMaxTags
	}

	prompt := fmt.Sprintf(suggestPromptTemplate, req.Title, req.Content)
	response, err := s.llm.Chat(ctx, []ai.Message{ai.UserMessage(prompt)})
	if err != nil {
		return nil, errors.Wrap(err, "tag suggestion call failed")
	}

	suggestions, err := parseSuggestions(response)
	if err != nil {
		return nil, err
	}

	suggestions = normalizeSuggestions(suggestions)
	if len(suggestions) > maxTags {
		suggestions = suggestions[:maxTags]
	}
	return suggestions, nil
}

// jsonArrayPattern matches the first bracketed array in the response. Models
// routinely wrap the payload in markdown fences or prose despite the prompt.
var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

func parseSuggestions(response string) ([]Suggestion, error) {
	raw := jsonArrayPattern.FindString(response)
	if raw == "" {
		return nil, errors.Errorf("no JSON array in tag suggestion response: %.80q", response)
	}

	var suggestions []Suggestion
	if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
		return nil, errors.Wrap(err, "failed to decode tag suggestions")
	}
	return suggestions, nil
}

// normalizeSuggestions lowercases and trims tags, drops empties and
// duplicates, clamps confidence into [0,1], and sorts descending.
func normalizeSuggestions(suggestions []Suggestion) []Suggestion {
	seen := make(map[string]bool, len(suggestions))
	normalized := make([]Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		s.Tag = strings.ToLower(strings.TrimSpace(s.Tag))
		if s.Tag == "" || seen[s.Tag] {
			continue
		}
		seen[s.Tag] = true
		if s.Confidence < 0 {
			s.Confidence = 0
		}
		if s.Confidence > 1 {
			s.Confidence = 1
		}
		normalized = append(normalized, s)
	}

	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].Confidence > normalized[j].Confidence
	})
	return normalized
}
