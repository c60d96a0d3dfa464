// Package enrich turns scraped article text into a marketing-oriented
// headline, summary, and tag selection using Claude.
package enrich

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sethvargo/go-retry"

	"github.com/thebrief/briefbot/internal/brief"
)

//go:embed prompt.txt
var promptTemplate string

const (
	model     = anthropic.Model("claude-sonnet-4-5")
	maxTokens = 1024

	// maxBodyChars caps how much article text goes into the prompt.
	maxBodyChars = 15000

	// maxAttempts counts the first try plus retries. Both transport and
	// parse failures are retried on the same schedule.
	maxAttempts = 3
)

// completeFunc issues one prompt to the model and returns its text response.
type completeFunc func(ctx context.Context, prompt string) (string, error)

// Enricher calls the model with a fixed prompt and validates the JSON it
// returns. Transient failures are retried with exponential backoff; after
// that the error is terminal and the caller decides whether it matters.
type Enricher struct {
	complete completeFunc
	backoff  func() retry.Backoff
}

func New(client anthropic.Client) *Enricher {
	return &Enricher{
		complete: func(ctx context.Context, prompt string) (string, error) {
			msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
				Model:     model,
				MaxTokens: maxTokens,
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
				},
			})
			if err != nil {
				return "", err
			}

			var text strings.Builder
			for _, block := range msg.Content {
				text.WriteString(block.Text)
			}

			return text.String(), nil
		},
		backoff: defaultBackoff,
	}
}

// 1s, 2s between the three attempts.
func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(maxAttempts-1, retry.NewExponential(time.Second))
}

// Enrich prompts the model with the article and the allowed-tags list.
//
// Returned tag names are lower-cased and trimmed; matching them against the
// taxonomy is the caller's job.
func (e *Enricher) Enrich(ctx context.Context, article brief.ScrapedArticle, taxonomy []string) (brief.EnrichmentResult, error) {
	prompt := buildPrompt(article, taxonomy)

	var (
		result  brief.EnrichmentResult
		lastErr error
	)
	err := retry.Do(ctx, e.backoff(), func(ctx context.Context) error {
		text, err := e.complete(ctx, prompt)
		if err != nil {
			lastErr = err
			return retry.RetryableError(err)
		}

		parsed, err := parseResponse(text)
		if err != nil {
			lastErr = err
			return retry.RetryableError(err)
		}

		result = parsed
		return nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return brief.EnrichmentResult{}, fmt.Errorf("enrichment failed after %d attempts: %w", maxAttempts, lastErr)
	}

	return result, nil
}

func buildPrompt(article brief.ScrapedArticle, taxonomy []string) string {
	body := article.RawContent
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars] + "..."
	}

	source := "Unknown"
	if article.SourceName != nil {
		source = *article.SourceName
	}

	return fmt.Sprintf(promptTemplate, strings.Join(taxonomy, ", "), article.Title, source, body)
}

// parseResponse pulls the first brace-delimited JSON object out of the model
// output (it may be wrapped in prose or code fences) and validates the
// contract: headline, summary, and tags must all be present with the right
// shapes. Anything less is a parse failure, not a partial success.
func parseResponse(text string) (brief.EnrichmentResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return brief.EnrichmentResult{}, fmt.Errorf("no JSON object found in enrichment response")
	}

	var payload struct {
		Headline *string   `json:"headline"`
		Summary  *string   `json:"summary"`
		Tags     *[]string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return brief.EnrichmentResult{}, fmt.Errorf("error unmarshaling enrichment response: %w", err)
	}

	if payload.Headline == nil {
		return brief.EnrichmentResult{}, fmt.Errorf("missing headline in enrichment response")
	}
	if payload.Summary == nil {
		return brief.EnrichmentResult{}, fmt.Errorf("missing summary in enrichment response")
	}
	if payload.Tags == nil {
		return brief.EnrichmentResult{}, fmt.Errorf("missing tags in enrichment response")
	}

	tags := make([]string, 0, len(*payload.Tags))
	for _, tag := range *payload.Tags {
		tags = append(tags, strings.ToLower(strings.TrimSpace(tag)))
	}

	return brief.EnrichmentResult{
		Headline: *payload.Headline,
		Summary:  *payload.Summary,
		Tags:     tags,
	}, nil
}
