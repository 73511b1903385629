package mt_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doctrans/internal/mt"
	"github.com/sells-group/doctrans/internal/mt/mocks"
	"github.com/sells-group/doctrans/pkg/anthropic"
	anthropicmocks "github.com/sells-group/doctrans/pkg/anthropic/mocks"
	"github.com/sells-group/doctrans/pkg/mtclient"
	mtclientmocks "github.com/sells-group/doctrans/pkg/mtclient/mocks"
)

func items(n int) []mt.Item {
	out := make([]mt.Item, n)
	for i := range out {
		out[i] = mt.Item{ID: fmt.Sprintf("s%d", i), Content: fmt.Sprintf("text %d", i)}
	}
	return out
}

func echo(ctx context.Context, in []mt.Item, _, _ string) (*mt.Response, error) {
	resp := &mt.Response{}
	for _, it := range in {
		resp.Results = append(resp.Results, mt.Translation{SegmentID: it.ID, TranslatedText: "T:" + it.Content})
	}
	return resp, nil
}

func TestBatcher_SplitsSequentially(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		n, size int
		calls   int
	}{
		{"exact multiple", 100, 50, 2},
		{"remainder", 120, 50, 3},
		{"single small batch", 3, 50, 1},
		{"default size", 51, 0, 2},
		{"empty", 0, 50, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := mocks.NewMockClient(t)
			if tt.calls > 0 {
				client.On("Translate", mock.Anything, mock.Anything, "en", "de").Return(echo).Times(tt.calls)
			}

			resp, err := mt.NewBatcher(client, tt.size).Translate(context.Background(), items(tt.n), "en", "de")
			require.NoError(t, err)
			require.Len(t, resp.Results, tt.n)
			for i, r := range resp.Results {
				assert.Equal(t, fmt.Sprintf("s%d", i), r.SegmentID)
			}
		})
	}
}

func TestBatcher_FailureAborts(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("Translate", mock.Anything, mock.Anything, "en", "de").Return(echo).Once()
	client.On("Translate", mock.Anything, mock.Anything, "en", "de").Return(nil, eris.New("upstream down")).Once()

	_, err := mt.NewBatcher(client, 2).Translate(context.Background(), items(6), "en", "de")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 2/3")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestBatcher_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := mocks.NewMockClient(t)
	_, err := mt.NewBatcher(client, 2).Translate(ctx, items(4), "en", "de")
	require.Error(t, err)
	client.AssertNotCalled(t, "Translate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHTTPTranslator(t *testing.T) {
	t.Parallel()

	client := mtclientmocks.NewMockClient(t)
	client.On("Translate", mock.Anything, []mtclient.Item{{ID: "s1", Content: "Hi"}}, "en", "fr").
		Return([]mtclient.Result{{SegmentID: "s1", TranslatedText: "Salut"}}, nil)

	resp, err := mt.NewHTTPTranslator(client).Translate(context.Background(), []mt.Item{{ID: "s1", Content: "Hi"}}, "en", "fr")
	require.NoError(t, err)
	assert.Equal(t, []mt.Translation{{SegmentID: "s1", TranslatedText: "Salut"}}, resp.Results)
}

func TestHTTPTranslator_Error(t *testing.T) {
	t.Parallel()

	client := mtclientmocks.NewMockClient(t)
	client.On("Translate", mock.Anything, mock.Anything, "en", "fr").Return(nil, eris.New("boom"))

	_, err := mt.NewHTTPTranslator(client).Translate(context.Background(), items(1), "en", "fr")
	require.Error(t, err)
}

func llmResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: text}}}
}

func TestLLMTranslator(t *testing.T) {
	t.Parallel()

	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			len(req.System) == 1 && req.System[0].CacheControl != nil &&
			len(req.Messages) == 1 &&
			strings.Contains(req.Messages[0].Content, "Target language: es") &&
			strings.Contains(req.Messages[0].Content, `"Click <g id=\"1\" type=\"a\">here</g>"`)
	})).Return(llmResponse("```json\n[\"Haz clic <g id=\\\"1\\\" type=\\\"a\\\">aquí</g>\", \"Hola <PERSON_1>\"]\n```"), nil)

	in := []mt.Item{
		{ID: "a", Content: `Click <g id="1" type="a">here</g>`},
		{ID: "b", Content: "Hello <PERSON_1>"},
	}
	resp, err := mt.NewLLMTranslator(client, "claude-haiku-4-5-20251001", 0).Translate(context.Background(), in, "en", "es")
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a", resp.Results[0].SegmentID)
	assert.Equal(t, `Haz clic <g id="1" type="a">aquí</g>`, resp.Results[0].TranslatedText)
	assert.Equal(t, "Hola <PERSON_1>", resp.Results[1].TranslatedText)
}

func TestLLMTranslator_BadOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"no array", "Sorry, I cannot help.", "no JSON array"},
		{"count mismatch", `["only one"]`, "1 translations for 2 segments"},
		{"invalid json", `["a", b]`, "parse llm response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := anthropicmocks.NewMockClient(t)
			client.On("CreateMessage", mock.Anything, mock.Anything).Return(llmResponse(tt.text), nil)

			_, err := mt.NewLLMTranslator(client, "m", 100).Translate(context.Background(), items(2), "en", "es")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLLMTranslator_Empty(t *testing.T) {
	t.Parallel()

	client := anthropicmocks.NewMockClient(t)
	resp, err := mt.NewLLMTranslator(client, "m", 100).Translate(context.Background(), nil, "en", "es")
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}
