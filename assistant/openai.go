package assistant

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/evkuzin/planthealth/config"
	"github.com/evkuzin/planthealth/storage"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	breakerFailures = 3
	breakerTimeout  = 30 * time.Second
	retries         = 1
)

type completer interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type openAIAssistant struct {
	client     completer
	conf       config.OpenAI
	household  string
	breaker    *gobreaker.CircuitBreaker
	retryDelay time.Duration
	logger     *logrus.Logger
}

// New returns an Assistant backed by the OpenAI chat completion API. A
// missing key is an error, callers treat it as a disabled chatbot.
func New(conf *config.Config, logger *logrus.Logger) (Assistant, error) {
	if conf.OpenAI.Key == "" {
		return nil, ErrDisabled
	}
	clientConf := openai.DefaultConfig(conf.OpenAI.Key)
	if conf.OpenAI.BaseURL != "" {
		clientConf.BaseURL = conf.OpenAI.BaseURL
	}
	return newAssistant(openai.NewClientWithConfig(clientConf), &conf.OpenAI, logger), nil
}

func newAssistant(client completer, conf *config.OpenAI, logger *logrus.Logger) *openAIAssistant {
	a := &openAIAssistant{
		client:     client,
		conf:       *conf,
		household:  householdNames(conf.Household),
		retryDelay: conf.RetryDelay,
		logger:     logger,
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "openai",
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return a
}

func (a *openAIAssistant) Notification(ctx context.Context, plant *storage.Plant, reading *storage.Reading) (string, error) {
	return a.complete(ctx, notificationMessages(plant, reading, a.household))
}

func (a *openAIAssistant) Summary(ctx context.Context, plant *storage.Plant, reading *storage.Reading) (string, error) {
	return a.complete(ctx, summaryMessages(plant, reading, a.household))
}

func (a *openAIAssistant) Recommendation(ctx context.Context, plant *storage.Plant, reading *storage.Reading) (string, error) {
	return a.complete(ctx, recommendationMessages(plant, reading, a.household))
}

func (a *openAIAssistant) Chat(ctx context.Context, plant *storage.Plant, reading *storage.Reading, history []string, user, input string) (string, error) {
	return a.complete(ctx, chatMessages(plant, reading, a.household, history, user, input))
}

// complete sends one request through the breaker and retries it once.
func (a *openAIAssistant) complete(ctx context.Context, msgs []openai.ChatCompletionMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:            a.conf.Model,
		Messages:         msgs,
		MaxTokens:        a.conf.MaxTokens,
		Temperature:      a.conf.Temperature,
		TopP:             a.conf.TopP,
		FrequencyPenalty: a.conf.FrequencyPenalty,
	}
	// a zero temperature is dropped from the request by omitempty
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(a.retryDelay), retries), ctx)
	text, err := backoff.RetryNotifyWithData(func() (string, error) {
		res, err := a.breaker.Execute(func() (interface{}, error) {
			resp, err := a.client.CreateChatCompletion(ctx, req)
			if err != nil {
				return nil, err
			}
			if len(resp.Choices) == 0 {
				return nil, ErrNoChoices
			}
			return resp.Choices[0].Message.Content, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", backoff.Permanent(err)
		}
		if err != nil {
			return "", err
		}
		return res.(string), nil
	}, bo, func(err error, d time.Duration) {
		a.logger.Warnf("completion failed, retrying in %s: %s", d, err)
	})
	if err != nil {
		return "", fmt.Errorf("cannot get completion: %w", err)
	}
	return strings.TrimSpace(text), nil
}
