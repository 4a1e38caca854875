// Package faq answers storefront questions through a text-generation API,
// falling back to canned replies whenever the API cannot give an answer.
package faq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint Gemini generateContent 接口。
const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash-latest:generateContent"

// 回退文案，顾客看到的都是这些固定字符串，不暴露错误细节。
const (
	MsgEmptyQuestion = "Merci de saisir une question avant d'envoyer."
	MsgNoAPIKey      = "Merci pour votre question ! Notre équipe vous répondra très vite."
	MsgHTTPError     = "Impossible de contacter l'assistant pour le moment. Essayez à nouveau dans un instant."
	MsgNetworkError  = "Nous rencontrons un souci technique. Votre question a bien été transmise à l'équipe."
	MsgBadResponse   = "Réponse inattendue de l'assistant. Nous reviendrons vers vous rapidement."
	MsgNoText        = "Merci ! Nous reviendrons vers vous très vite avec une réponse plus détaillée."
)

// Client 调用外部文本生成接口。
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	logger     *slog.Logger
}

// NewClient timeout 是单次调用的上限，请求方的 context 之外再加一层固定超时。
func NewClient(endpoint, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
		logger:     logger,
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// text 取第一个非空文本片段。
func (r generateResponse) text() string {
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			if t := strings.TrimSpace(p.Text); t != "" {
				return t
			}
		}
	}
	return ""
}

// Prompt 拼接提示词，contextText 为后台维护的店铺资料。
func Prompt(question, contextText string) string {
	if contextText != "" {
		return "Tu es l'assistant du magasin Bghitha. Utilise le contexte suivant pour répondre :\n" +
			contextText + "\n\n" +
			"Réponds en français à la question ci-dessous en 2–3 phrases maximum, précises et utiles.\n" +
			"Question: " + question
	}
	return "Tu es l'assistant du magasin Bghitha. Réponds en français à la question suivante en 2–3 phrases utiles :\n" +
		question
}

// Ask 永远返回一段可展示的文本，失败时返回回退文案，不返回错误。
func (c *Client) Ask(ctx context.Context, question, contextText string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return MsgEmptyQuestion
	}
	if c == nil || c.apiKey == "" {
		if c != nil {
			c.logger.Warn("faq api key missing, using fallback")
		}
		return MsgNoAPIKey
	}

	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: Prompt(question, contextText)}}}},
		GenerationConfig: generationConfig{Temperature: 0.7, MaxOutputTokens: 256},
	})
	if err != nil {
		c.logger.Error("faq marshal request", "error", err)
		return MsgNetworkError
	}
	endpoint := c.endpoint + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("faq build request", "error", err)
		return MsgNetworkError
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("faq request failed", "error", redact(err, c.apiKey))
		return MsgNetworkError
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.logger.Error("faq read body", "error", err)
		return MsgNetworkError
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("faq http error", "status", resp.StatusCode, "body", truncate(raw, 200))
		return MsgHTTPError
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Error("faq response not json", "body", truncate(raw, 200))
		return MsgBadResponse
	}
	text := out.text()
	if text == "" {
		c.logger.Warn("faq response missing text", "body", truncate(raw, 200))
		return MsgNoText
	}
	return text
}

// redact 错误信息里会带上含 key 的 URL。
func redact(err error, secret string) string {
	return strings.ReplaceAll(err.Error(), url.QueryEscape(secret), "***")
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return fmt.Sprintf("%s…", b[:n])
	}
	return string(b)
}
