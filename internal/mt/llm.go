package mt

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/doctrans/pkg/anthropic"
)

const systemPrompt = `You are a professional translator. You receive a JSON array of strings and translate each string from the source language to the target language.

Rules:
- Return ONLY a JSON array of strings with exactly as many elements as the input, in the same order.
- Markers such as <g id="1" type="a">text</g> and <ph id="2" type="img"/> must be kept exactly, with the same id and type attributes. Translate the text inside <g> markers. You may move markers to fit the target grammar.
- Placeholders such as <PERSON_1> or <EMAIL_ADDRESS_2> replace sensitive data. Copy them unchanged and do not translate them.
- Do not add explanations, notes or code fences.`

// LLMTranslator translates segments with a Claude model.
type LLMTranslator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewLLMTranslator returns a translator that calls model through client.
func NewLLMTranslator(client anthropic.Client, model string, maxTokens int64) *LLMTranslator {
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &LLMTranslator{client: client, model: model, maxTokens: maxTokens}
}

// Translate implements Client. The model's answer is matched to items by
// position and must contain one string per item.
func (l *LLMTranslator) Translate(ctx context.Context, items []Item, sourceLang, targetLang string) (*Response, error) {
	if len(items) == 0 {
		return &Response{}, nil
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Content
	}
	var input bytes.Buffer
	enc := json.NewEncoder(&input)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(texts); err != nil {
		return nil, eris.Wrap(err, "mt: marshal llm input")
	}

	temp := 0.0
	resp, err := l.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     l.model,
		MaxTokens: l.maxTokens,
		System:    anthropic.CachedSystemPrompt(systemPrompt),
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: "Source language: " + sourceLang + "\nTarget language: " + targetLang + "\n\n" + input.String(),
		}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "mt: llm translate")
	}
	resp.Usage.LogCost(l.model, zap.Int("segments", len(items)))

	translated, err := parseLLMOutput(resp.Text())
	if err != nil {
		return nil, err
	}
	if len(translated) != len(items) {
		return nil, eris.Errorf("mt: llm returned %d translations for %d segments", len(translated), len(items))
	}

	out := &Response{Results: make([]Translation, len(items))}
	for i, it := range items {
		out.Results[i] = Translation{SegmentID: it.ID, TranslatedText: translated[i]}
	}
	return out, nil
}

// parseLLMOutput extracts the JSON array from the model's text, tolerating
// surrounding code fences or prose.
func parseLLMOutput(text string) ([]string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, eris.New("mt: llm response contains no JSON array")
	}
	var out []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, eris.Wrap(err, "mt: parse llm response")
	}
	return out, nil
}
