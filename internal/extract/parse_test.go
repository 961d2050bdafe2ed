package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain object",
			input: `{"answer": "yes"}`,
			want:  `{"answer": "yes"}`,
		},
		{
			name:  "json fence",
			input: "```json\n{\"answer\": \"yes\"}\n```",
			want:  `{"answer": "yes"}`,
		},
		{
			name:  "bare fence",
			input: "```\n{\"answer\": \"yes\"}\n```",
			want:  `{"answer": "yes"}`,
		},
		{
			name:  "prose around object",
			input: "Here is the result:\n{\"answer\": \"yes\"}\nHope that helps!",
			want:  `{"answer": "yes"}`,
		},
		{
			name:  "no object",
			input: "no json here",
			want:  "no json here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.input))
		})
	}
}

func TestParseTaskAnswer(t *testing.T) {
	answer, conf, err := parseTaskAnswer(`{"answer": "B2B SaaS", "confidence": 0.85}`)
	require.NoError(t, err)
	assert.Equal(t, "B2B SaaS", answer)
	assert.InDelta(t, 0.85, conf, 1e-9)
}

func TestParseTaskAnswer_Fenced(t *testing.T) {
	answer, conf, err := parseTaskAnswer("```json\n{\"answer\": \"Columbus, Ohio\", \"confidence\": 1}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Columbus, Ohio", answer)
	assert.InDelta(t, 1.0, conf, 1e-9)
}

func TestParseTaskAnswer_NonStringAnswer(t *testing.T) {
	answer, _, err := parseTaskAnswer(`{"answer": 42, "confidence": 0.5}`)
	require.NoError(t, err)
	assert.Equal(t, "42", answer)
}

func TestParseTaskAnswer_MissingConfidence(t *testing.T) {
	answer, conf, err := parseTaskAnswer(`{"answer": "something"}`)
	require.NoError(t, err)
	assert.Equal(t, "something", answer)
	assert.Zero(t, conf)
}

func TestParseTaskAnswer_MissingAnswer(t *testing.T) {
	_, _, err := parseTaskAnswer(`{"confidence": 0.9}`)
	assert.Error(t, err)
}

func TestParseTaskAnswer_NotJSON(t *testing.T) {
	_, _, err := parseTaskAnswer("The company sells widgets.")
	assert.Error(t, err)
}
