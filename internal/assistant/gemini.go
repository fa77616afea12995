package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/awhite/billfold/internal/receipt"
)

// Gemini answers questions through Google Gemini, grounding the model on a
// compact document built from the receipt list and insights. On any API
// failure it degrades to the local responder rather than surfacing the
// error, so the chat always answers.
type Gemini struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	fallback *Local
}

// NewGemini creates the Gemini responder.
func NewGemini(apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:   client,
		model:    client.GenerativeModel(modelName),
		fallback: NewLocal(),
	}, nil
}

const answerPrompt = `You are a personal spending assistant. Answer the user's question using ONLY the receipt data and computed insights below. Be concise and concrete; quote amounts with two decimals. If the data cannot answer the question, say so.

DATA:
%s

QUESTION: %s`

// Answer builds the context document and asks Gemini.
func (g *Gemini) Answer(ctx context.Context, question string, receipts []receipt.Receipt, insights receipt.Insights) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	document, err := contextDocument(receipts, insights)
	if err != nil {
		slog.Warn("Failed to build assistant context", "error", err)
		return g.fallback.Answer(ctx, question, receipts, insights)
	}

	resp, err := g.model.GenerateContent(ctx, genai.Text(fmt.Sprintf(answerPrompt, document, question)))
	if err != nil {
		slog.Warn("Assistant call failed, answering locally", "error", err)
		return g.fallback.Answer(ctx, question, receipts, insights)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return g.fallback.Answer(ctx, question, receipts, insights)
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	answer := strings.TrimSpace(out.String())
	if answer == "" {
		return g.fallback.Answer(ctx, question, receipts, insights)
	}
	return answer, nil
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// contextDocument serializes the allowed context: the receipt list and the
// aggregator's output, nothing else.
func contextDocument(receipts []receipt.Receipt, insights receipt.Insights) (string, error) {
	payload := struct {
		Receipts []receipt.Receipt `json:"receipts"`
		Insights receipt.Insights  `json:"insights"`
	}{
		Receipts: receipts,
		Insights: insights,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling context: %w", err)
	}
	return string(data), nil
}
