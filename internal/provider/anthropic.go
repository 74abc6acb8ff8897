package provider

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"

	"github.com/tactix-ai/tactix/pkg/models"
)

// ClientConfig contains configuration for creating an AnthropicProvider.
type ClientConfig struct {
	// Model is the Claude model to use.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of the direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// MaxTokens caps the response size per invocation. Defaults to 4096.
	MaxTokens int64
}

// AnthropicProvider is a CapabilityProvider backed by the Anthropic API.
type AnthropicProvider struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
	tracker   *TokenTracker
}

// NewAnthropicProvider creates a provider from the given configuration.
func NewAnthropicProvider(cfg ClientConfig) (*AnthropicProvider, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &AnthropicProvider{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		tracker:   NewTokenTracker(),
	}, nil
}

// confidenceRe matches the trailing confidence line the prompt asks for.
var confidenceRe = regexp.MustCompile(`(?m)^CONFIDENCE:\s*([0-9]*\.?[0-9]+)\s*$`)

const invokeSystemPrompt = `You are a worker agent in a task orchestration system.
Produce the requested artifact directly, with no preamble.
End your response with a line of the form "CONFIDENCE: <0.0-1.0>" reporting
how confident you are that the artifact satisfies the task.`

// Invoke produces an artifact for the task via the Messages API.
// The ctx deadline is the per-call timeout derived from task complexity.
func (p *AnthropicProvider) Invoke(ctx context.Context, task *models.Task) (*models.Artifact, error) {
	prompt := fmt.Sprintf("Task type: %s\n\n%s", task.Type, task.Description)

	resp, err := p.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: invokeSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("API call failed: %w", err)
	}

	p.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var sb strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(variant.Text)
		}
	}

	content, confidence := extractConfidence(sb.String())

	return &models.Artifact{
		ID:         uuid.New().String(),
		TaskID:     task.ID,
		Content:    content,
		Confidence: confidence,
		ProducedAt: time.Now(),
	}, nil
}

// extractConfidence strips the trailing confidence line and returns the
// parsed score. Missing or unparsable lines default to 0.5 (neutral).
func extractConfidence(text string) (string, float64) {
	matches := confidenceRe.FindStringSubmatch(text)
	if matches == nil {
		return strings.TrimSpace(text), 0.5
	}

	confidence, err := strconv.ParseFloat(matches[1], 64)
	if err != nil || confidence < 0 || confidence > 1 {
		confidence = 0.5
	}

	content := confidenceRe.ReplaceAllString(text, "")
	return strings.TrimSpace(content), confidence
}

// TokenTracker tracks token usage across API calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewTokenTracker creates a new token tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records token usage from an API call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the total input and output tokens tracked.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of API calls made.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Tracker returns the provider's token tracker.
func (p *AnthropicProvider) Tracker() *TokenTracker {
	return p.tracker
}

// AnthropicFactory creates one shared AnthropicProvider per agent.
// The underlying SDK client is safe for concurrent use, so every agent
// gets the same provider instance.
type AnthropicFactory struct {
	provider *AnthropicProvider
}

// NewAnthropicFactory creates a factory around one configured client.
func NewAnthropicFactory(cfg ClientConfig) (*AnthropicFactory, error) {
	p, err := NewAnthropicProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &AnthropicFactory{provider: p}, nil
}

// NewProvider implements Factory.
func (f *AnthropicFactory) NewProvider(agentID string) (CapabilityProvider, error) {
	return f.provider, nil
}
