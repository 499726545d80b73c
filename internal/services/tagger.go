package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tracklift/internal/shared"
)

const (
	defaultTaggerURL      = "https://openrouter.ai/api/v1/chat/completions"
	defaultTaggerModel    = "openai/gpt-4o-mini"
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	maxTagsPerKind        = 3
)

// GenreVocabulary lists the genre ids a track may be tagged with.
var GenreVocabulary = []string{
	"afrobeats", "alternative", "ambient", "blues", "classical", "country", "dance", "electronic",
	"folk", "funk", "gospel", "hip-hop", "indie", "jazz", "latin", "metal", "pop", "punk",
	"reggae", "rnb", "rock", "soul", "soundtrack", "world",
}

// MoodVocabulary lists the mood ids a track may be tagged with.
var MoodVocabulary = []string{
	"angry", "calm", "chill", "dark", "dreamy", "energetic", "focus", "happy",
	"melancholic", "nostalgic", "party", "romantic", "sad", "uplifting",
}

const taggerSystemPrompt = `You classify music recordings. Respond with JSON only, shaped as
{"genres": ["..."], "moods": ["..."]}. Choose at most three genres from: %s.
Choose at most three moods from: %s. Use only the listed ids. Return empty arrays when unsure.`

// LLMTagger implements [Tagger] with an OpenAI compatible chat completions endpoint.
type LLMTagger struct {
	api   *APIService
	model string

	retryAttempts  int
	retryBaseDelay time.Duration
	sleeper        func(context.Context, time.Duration) error
}

// TaggerOption customizes an [LLMTagger].
type TaggerOption func(*LLMTagger)

// WithTaggerRetry overrides the retry count and base backoff.
func WithTaggerRetry(attempts int, baseDelay time.Duration) TaggerOption {
	return func(t *LLMTagger) {
		t.retryAttempts = attempts
		t.retryBaseDelay = baseDelay
	}
}

// WithTaggerSleeper overrides how retry sleeps are performed.
func WithTaggerSleeper(sleeper func(context.Context, time.Duration) error) TaggerOption {
	return func(t *LLMTagger) {
		t.sleeper = sleeper
	}
}

// NewLLMTagger creates a tagger from cfg. It fails without an API key.
func NewLLMTagger(cfg shared.TaggingConfig, opts ...TaggerOption) (*LLMTagger, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: tagging api_key", shared.ErrMissingCredentials)
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultTaggerURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultTaggerModel
	}
	timeout := 15 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	api := NewAPIService(baseURL, &http.Client{Timeout: timeout})
	api.SetHeader("Authorization", "Bearer "+apiKey)

	t := &LLMTagger{
		api:            api,
		model:          model,
		retryAttempts:  defaultRetryAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		sleeper:        sleepContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Tags asks the model for genre and mood ids. Ids outside the vocabularies are dropped.
func (t *LLMTagger) Tags(ctx context.Context, artist, track string) (Tags, error) {
	if strings.TrimSpace(track) == "" {
		return Tags{}, fmt.Errorf("%w: track name is required", shared.ErrValidation)
	}

	user := fmt.Sprintf("Artist: %s\nTrack: %s", strings.TrimSpace(artist), strings.TrimSpace(track))
	content, err := t.completeJSON(ctx, taggerPrompt(), user)
	if err != nil {
		return Tags{}, externalError("tagger", err)
	}

	var parsed struct {
		Genres []string `json:"genres"`
		Moods  []string `json:"moods"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &parsed); err != nil {
		return Tags{}, externalError("tagger", fmt.Errorf("parse payload: %w", err))
	}

	return Tags{
		Genres: filterVocabulary(parsed.Genres, GenreVocabulary),
		Moods:  filterVocabulary(parsed.Moods, MoodVocabulary),
	}, nil
}

func taggerPrompt() string {
	return fmt.Sprintf(taggerSystemPrompt, strings.Join(GenreVocabulary, ", "), strings.Join(MoodVocabulary, ", "))
}

// completeJSON sends a JSON-mode completion, retrying transport errors, 429 and 5xx.
func (t *LLMTagger) completeJSON(ctx context.Context, system, user string) (string, error) {
	payload := chatCompletionRequest{
		Model: t.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	attempts := max(t.retryAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, retryAfter, err := t.send(ctx, payload)
		if err == nil {
			return content, nil
		}
		lastErr = err

		if attempt == attempts || !retryable(err) {
			break
		}

		delay := t.retryBaseDelay << (attempt - 1)
		if retryAfter > 0 {
			delay = retryAfter
		}
		if err := t.sleeper(ctx, min(delay, defaultRetryMaxDelay)); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (t *LLMTagger) send(ctx context.Context, payload chatCompletionRequest) (string, time.Duration, error) {
	resp, err := t.api.Post(ctx, "", payload)
	if err != nil {
		return "", 0, err
	}
	if err := resp.Err(); err != nil {
		return "", retryAfter(resp.Headers.Get("Retry-After")), err
	}

	var completion chatCompletionResponse
	if err := resp.Decode(&completion); err != nil {
		return "", 0, err
	}
	if completion.Error != nil {
		return "", 0, errors.New(completion.Error.Message)
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, 0, nil
		}
	}
	return "", 0, errors.New("empty completion")
}

func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func retryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// stripCodeFence removes a ```json fence some models wrap around JSON output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// filterVocabulary normalizes ids to slugs and keeps known ones, in order, without duplicates.
func filterVocabulary(ids, vocabulary []string) []string {
	var out []string
	for _, id := range ids {
		slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(id)), " ", "-")
		if slug == "r&b" {
			slug = "rnb"
		}
		if !slices.Contains(vocabulary, slug) || slices.Contains(out, slug) {
			continue
		}
		out = append(out, slug)
		if len(out) == maxTagsPerKind {
			break
		}
	}
	return out
}
