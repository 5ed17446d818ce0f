package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "lowercase", input: "Foo Bar", expected: "foo bar"},
		{name: "punctuation stripped", input: "foo   bar!", expected: "foo bar"},
		{name: "hyphen removed without space", input: "Self-Attention: a survey", expected: "selfattention a survey"},
		{name: "tabs and newlines collapse", input: "deep\t\tlearning\n\nmodels", expected: "deep learning models"},
		{name: "trim", input: "  spaced  ", expected: "spaced"},
		{name: "digits kept", input: "GPT-4 Technical Report", expected: "gpt4 technical report"},
		{name: "unicode letters kept", input: "Über Graphen", expected: "über graphen"},
		{name: "empty", input: "", expected: ""},
		{name: "only punctuation", input: "?!...", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTitle(tt.input))
		})
	}
}

func TestIdentityKeys(t *testing.T) {
	t.Run("provider keys sorted then title key", func(t *testing.T) {
		r := domain.Record{
			Title: "Foo Bar",
			ProviderIDs: map[domain.SourceType]string{
				domain.SourceTypeOpenAlex: "W123",
				domain.SourceTypeArXiv:    "2401.00001",
			},
		}

		assert.Equal(t, []string{
			"arxiv:2401.00001",
			"openalex:W123",
			"title:foo bar",
		}, IdentityKeys(r))
	})

	t.Run("empty provider ids are skipped", func(t *testing.T) {
		r := domain.Record{
			Title: "Foo",
			ProviderIDs: map[domain.SourceType]string{
				domain.SourceTypeArXiv:    "",
				domain.SourceTypeOpenAlex: "   ",
			},
		}

		assert.Equal(t, []string{"title:foo"}, IdentityKeys(r))
	})

	t.Run("title key always present", func(t *testing.T) {
		assert.Equal(t, []string{"title:"}, IdentityKeys(domain.Record{}))
	})

	t.Run("native id whitespace trimmed", func(t *testing.T) {
		r := domain.Record{ProviderIDs: map[domain.SourceType]string{"p1": " 100 "}}
		assert.Equal(t, []string{"p1:100", "title:"}, IdentityKeys(r))
	})
}

func TestIsTitleKey(t *testing.T) {
	assert.True(t, IsTitleKey(TitleKey("x")))
	assert.False(t, IsTitleKey("arxiv:1"))
}
