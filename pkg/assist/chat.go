package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/kinship-crm/kinship/pkg/ai"
	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/store"
)

const (
	searchCandidates = 30
	toolResultLimit  = 10
)

var personCitation = regexp.MustCompile(`\[\[(\d+)\]\]`)

// citedPersons returns the ids cited as [[id]] in text, in order of first
// appearance.
func citedPersons(text string) []int64 {
	matches := personCitation.FindAllStringSubmatch(text, -1)
	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || slices.Contains(ids, id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Chat answers a question about the catalog. The model sees a token
// bounded summary of all persons and can look up more through the
// search_persons and get_person tools.
func (s *Service) Chat(ctx context.Context, req common.ChatRequest) (common.ChatResponse, error) {
	client, err := s.model()
	if err != nil {
		return common.ChatResponse{}, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return common.ChatResponse{}, ErrEmptyInput
	}

	cat, err := s.loadCatalog(ctx)
	if err != nil {
		return common.ChatResponse{}, err
	}
	system := fmt.Sprintf(ai.ChatSystemPrompt, s.today(), s.pack(cat.lines()))

	messages := make([]ai.ChatMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		messages = append(messages, ai.ChatMessage{Role: m.Role, Message: m.Message})
	}
	messages = append(messages, ai.ChatMessage{Role: "user", Message: req.Message})

	reply, err := client.GenerateChatWithTools(ctx, messages, s.chatTools(cat), ai.WithSystemPrompts(system))
	if err != nil {
		return common.ChatResponse{}, fmt.Errorf("chat: %w", err)
	}

	ids := []int64{}
	for _, id := range citedPersons(reply) {
		if _, ok := cat.byID[id]; ok {
			ids = append(ids, id)
		}
	}
	return common.ChatResponse{Reply: strings.TrimSpace(reply), PersonIDs: ids}, nil
}

type searchArgs struct {
	Query string `json:"query"`
}

type personArgs struct {
	ID int64 `json:"id"`
}

type personHit struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type personDetail struct {
	Person        common.Person               `json:"person"`
	Tags          []string                    `json:"tags"`
	Employments   []common.Employment         `json:"employments"`
	Relationships []common.PersonRelationship `json:"relationships"`
	Anecdotes     []string                    `json:"anecdotes"`
}

func (s *Service) chatTools(cat *catalog) []ai.Tool {
	return []ai.Tool{
		{
			Name:        "search_persons",
			Description: "Search persons by name, nickname or notes. Returns ids and names.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Search text"},
				},
				"required":             []string{"query"},
				"additionalProperties": false,
			},
			Handler: func(ctx context.Context, arguments string) (string, error) {
				var args searchArgs
				if err := json.Unmarshal([]byte(arguments), &args); err != nil {
					return "", fmt.Errorf("invalid arguments: %w", err)
				}
				persons, err := s.textSearch(ctx, args.Query, toolResultLimit)
				if err != nil {
					return "", err
				}
				hits := make([]personHit, len(persons))
				for i, p := range persons {
					hits[i] = personHit{ID: p.ID, Name: p.FullName()}
				}
				return marshalTool(hits)
			},
		},
		{
			Name:        "get_person",
			Description: "Get the full profile of one person including relationships, jobs and anecdotes.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{"type": "integer", "description": "Person id"},
				},
				"required":             []string{"id"},
				"additionalProperties": false,
			},
			Handler: func(ctx context.Context, arguments string) (string, error) {
				var args personArgs
				if err := json.Unmarshal([]byte(arguments), &args); err != nil {
					return "", fmt.Errorf("invalid arguments: %w", err)
				}
				p, ok := cat.byID[args.ID]
				if !ok {
					return "person not found", nil
				}
				rels, err := s.relations.ListForPerson(ctx, p.ID)
				if err != nil {
					return "", err
				}
				anecdotes, _, err := s.store.ListAnecdotes(ctx, store.ListParams{PersonID: p.ID, Limit: toolResultLimit})
				if err != nil {
					return "", err
				}
				detail := personDetail{
					Person:        p,
					Tags:          cat.tagNames(p),
					Employments:   cat.employments[p.ID],
					Relationships: rels,
					Anecdotes:     make([]string, len(anecdotes)),
				}
				for i, a := range anecdotes {
					detail.Anecdotes[i] = a.Title + ": " + oneLine(a.Content)
				}
				return marshalTool(detail)
			},
		},
	}
}

func marshalTool(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// textSearch matches the whole query first and falls back to matching
// single words.
func (s *Service) textSearch(ctx context.Context, query string, limit int) ([]common.Person, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []common.Person{}, nil
	}
	persons, _, err := s.store.ListPersons(ctx, store.ListParams{Search: query, Limit: limit})
	if err != nil || len(persons) > 0 {
		return persons, err
	}

	seen := map[int64]struct{}{}
	out := []common.Person{}
	for _, word := range strings.Fields(query) {
		if len([]rune(word)) < 3 {
			continue
		}
		found, _, err := s.store.ListPersons(ctx, store.ListParams{Search: word, Limit: limit})
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
	}
	return out, nil
}

type smartSelection struct {
	PersonIDs   []int64 `json:"person_ids" jsonschema:"required"`
	Explanation string  `json:"explanation" jsonschema:"required"`
}

// SmartSearch answers a natural-language query. Candidates come from the
// embedding index when persons have embeddings and from text search
// otherwise; the model then picks and orders the matches.
func (s *Service) SmartSearch(ctx context.Context, req common.SmartSearchRequest) (common.SmartSearchResponse, error) {
	client, err := s.model()
	if err != nil {
		return common.SmartSearchResponse{}, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return common.SmartSearchResponse{}, ErrEmptyInput
	}

	candidates, err := s.searchCandidates(ctx, client, req.Query)
	if err != nil {
		return common.SmartSearchResponse{}, err
	}
	if len(candidates) == 0 {
		return common.SmartSearchResponse{Persons: []common.Person{}, Explanation: "No matching persons found."}, nil
	}

	cat, err := s.loadCatalog(ctx)
	if err != nil {
		return common.SmartSearchResponse{}, err
	}
	lines := make([]string, len(candidates))
	byID := make(map[int64]common.Person, len(candidates))
	for i, p := range candidates {
		lines[i] = cat.line(p)
		byID[p.ID] = p
	}

	var sel smartSelection
	prompt := fmt.Sprintf(ai.SmartSearchPrompt, req.Query, s.pack(lines))
	if err := client.GenerateCompletionWithFormat(ctx, "smart_search", "Persons matching the query", prompt, &sel); err != nil {
		return common.SmartSearchResponse{}, fmt.Errorf("smart search: %w", err)
	}

	persons := []common.Person{}
	for _, id := range sel.PersonIDs {
		p, ok := byID[id]
		if !ok || slices.ContainsFunc(persons, func(q common.Person) bool { return q.ID == id }) {
			continue
		}
		persons = append(persons, p)
	}
	return common.SmartSearchResponse{Persons: persons, Explanation: sel.Explanation}, nil
}

func (s *Service) searchCandidates(ctx context.Context, client ai.Client, query string) ([]common.Person, error) {
	emb, err := client.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		logger.Warn("[Assist] query embedding failed, using text search", "err", err)
	} else if !zeroVector(emb) {
		similar, err := s.store.SimilarPersons(ctx, emb, searchCandidates)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if len(similar) > 0 {
			return similar, nil
		}
	}
	return s.textSearch(ctx, query, searchCandidates)
}

func zeroVector(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
