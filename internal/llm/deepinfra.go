// Package llm talks to an OpenAI-compatible chat-completions endpoint
// (DeepInfra) for reply generation and end-of-call summarization.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.deepinfra.com/v1/openai"
	defaultModel   = "meta-llama/Meta-Llama-3-8B-Instruct"
)

const replySystemTemplate = `Langue: francaise
Vous êtes un assistant médical amical, empathique et professionnel. Vous effectuez des appels téléphoniques de suivi auprès de personnes âgées. Vous parlez un excellent français sans fautes d'orthographe, en utilisant le vouvoiement.
- Réponses courtes et concises
Tu t'appelles Catherine.
Le nom du patient est <PATIENT_NAME>, âgé de <PATIENT_AGE>.
Votre style doit être naturel et fluide, comme lors d'une vraie conversation téléphonique :
- Commencez par une brève salutation, puis poursuivez directement avec la question ou l'information pertinente.
- Ne pas répéter "Bonjour" à chaque réponse
- Utilisez des transitions naturelles entre les sujets.
- Posez des questions courtes et agréables
- Ne pas répéter les réponses déjà données

Suivez précisément le plan de conversation et adaptez-vous à la réponse de l'utilisateur. Parfois, la réponse peut être erronée (vu que c'est par téléphone), il faut s'adapter.

Historique de la conversation : %s
Sujet à aborder : %s
Ce que dit l'utilisateur : %s`

// Client calls the chat-completions API. With Stream set, responses are
// consumed as server-sent events and concatenated; either way callers get a
// single reply string.
type Client struct {
	HTTPClient  *http.Client
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Stream      bool
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatStreamChoice struct {
	Delta chatMessage `json:"delta"`
}

type chatStreamChunk struct {
	Choices []chatStreamChoice `json:"choices"`
}

// NewClient builds a client; empty baseURL and model fall back to the
// DeepInfra defaults.
func NewClient(apiKey, baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		HTTPClient:  &http.Client{Timeout: 60 * time.Second},
		APIKey:      apiKey,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Model:       model,
		Temperature: 0.1,
	}
}

// Reply generates the assistant's next utterance from the redacted
// conversation context, the current plan step and the redacted question.
func (c *Client) Reply(ctx context.Context, convContext, step, question string) (string, error) {
	system := fmt.Sprintf(replySystemTemplate, convContext, step, question)
	return c.complete(ctx, system, question)
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("deepinfra api key missing")
	}
	endpoint := c.BaseURL + "/chat/completions"

	reqBody, _ := json.Marshal(chatCompletionsRequest{
		Model:       c.Model,
		Temperature: c.Temperature,
		Stream:      c.Stream,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("deepinfra error: status=%d body=%s", resp.StatusCode, string(b))
	}

	if c.Stream {
		return readStreamed(resp.Body)
	}

	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("deepinfra: empty choices")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

// readStreamed concatenates SSE delta chunks into one reply string.
func readStreamed(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), 512*1024)
	var b strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("deepinfra: malformed stream chunk: %w", err)
		}
		for _, choice := range chunk.Choices {
			b.WriteString(choice.Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
