package ai

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kinship-crm/kinship/pkg/common"
)

func TestUnmarshalFlexible_ObjectVariants(t *testing.T) {
	type candidate struct {
		FirstName string `json:"first_name"`
		Nickname  string `json:"nickname,omitempty"`
	}

	tests := []struct {
		name  string
		input string
		want  candidate
	}{
		{
			name:  "valid json object",
			input: `{"first_name":"Mara"}`,
			want:  candidate{FirstName: "Mara"},
		},
		{
			name:  "unquoted key and single quotes",
			input: `{first_name: 'Mara', nickname: 'M'}`,
			want:  candidate{FirstName: "Mara", Nickname: "M"},
		},
		{
			name:  "trailing comma",
			input: `{"first_name":"Mara",}`,
			want:  candidate{FirstName: "Mara"},
		},
		{
			name:  "missing end bracket",
			input: `{"first_name":"Mara`,
			want:  candidate{FirstName: "Mara"},
		},
		{
			name:  "stringified object",
			input: `"{first_name: 'Mara'}"`,
			want:  candidate{FirstName: "Mara"},
		},
		{
			name:  "markdown fence",
			input: "```json\n{\"first_name\":\"Mara\"}\n```",
			want:  candidate{FirstName: "Mara"},
		},
		{
			name:  "duplicate leading brace",
			input: "{\n{\n  \"first_name\": \"Mara\"\n}\n",
			want:  candidate{FirstName: "Mara"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got candidate
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("UnmarshalFlexible() got = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexible_ContactList(t *testing.T) {
	input := `{"persons": [{first_name:'Ada', birthday:'1990-02-03'},{first_name:'Ben',}]}`
	var got common.ParseContactsResponse
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if len(got.Persons) != 2 || got.Persons[0].FirstName != "Ada" || got.Persons[1].FirstName != "Ben" {
		t.Fatalf("UnmarshalFlexible() got = %+v, want Ada and Ben", got)
	}
	if got.Persons[0].Birthday == nil || got.Persons[0].Birthday.String() != "1990-02-03" {
		t.Fatalf("birthday = %v, want 1990-02-03", got.Persons[0].Birthday)
	}
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	var got common.ContactCandidate
	for _, input := range []string{"hello", "", "```\n```"} {
		if err := UnmarshalFlexible(input, &got); !errors.Is(err, ErrMalformedJSON) {
			t.Errorf("UnmarshalFlexible(%q) error = %v, want ErrMalformedJSON", input, err)
		}
	}
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(&common.ParseContactsResponse{})
	raw, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	s := string(raw)
	for _, want := range []string{`"persons"`, `"first_name"`, `"format":"date"`, `"additionalProperties":false`} {
		if !strings.Contains(s, want) {
			t.Fatalf("GenerateSchema() missing %s in %s", want, s)
		}
	}
	if strings.Contains(s, `"$ref"`) {
		t.Fatalf("GenerateSchema() should inline definitions, got %s", s)
	}
	if GenerateSchema(common.ParseContactsResponse{}) != schema {
		t.Error("GenerateSchema() should reuse the schema for a type")
	}
}

func TestPackLines(t *testing.T) {
	lines := []string{"alpha", "beta", "gamma", "delta"}

	all, n := PackLines(lines, 0)
	if n != 4 || !strings.Contains(all, "delta") {
		t.Fatalf("PackLines(no budget) = %q, %d", all, n)
	}

	some, n := PackLines(lines, CountTokens("alpha")+CountTokens("beta")+2)
	if n != 2 || strings.Contains(some, "gamma") {
		t.Fatalf("PackLines(two lines) = %q, %d", some, n)
	}
}

func TestModelMetricsAdd(t *testing.T) {
	var m ModelMetrics
	m.Add(ModelMetrics{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, DurationMs: 500})
	m.Add(ModelMetrics{InputTokens: 5, OutputTokens: 5, TotalTokens: 10, DurationMs: 500})
	if m.TotalTokens != 25 || m.DurationMs != 1000 {
		t.Fatalf("Add() = %+v", m)
	}
	if m.TokenPerSecond != 25 {
		t.Fatalf("TokenPerSecond = %v, want 25", m.TokenPerSecond)
	}
}

func TestGenerateOptionsApply(t *testing.T) {
	base := GenerateOptions{Model: "chat", Temperature: 0.2}
	got := base.Apply(WithModel("extract"), WithSystemPrompts("a", "b"), WithThinking("low"))
	if got.Model != "extract" || got.Temperature != 0.2 || len(got.SystemPrompts) != 2 || got.Thinking != "low" {
		t.Fatalf("Apply() = %+v", got)
	}
	if base.Model != "chat" || base.SystemPrompts != nil {
		t.Fatalf("Apply() changed the receiver: %+v", base)
	}
}
