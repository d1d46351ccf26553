package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fedpulse/fedpulse/internal/analysis"
	"github.com/fedpulse/fedpulse/provider"
)

// State keys shared between stages and the run orchestration.
const (
	KeyArticles    = "articles"
	KeyRunContext  = "context"
	KeyExtracted   = "extracted_information"
	KeySummary     = "summary"
	KeyCited       = "summary_with_citations"
	topicKeyPrefix = "topic:"
)

// TopicKey returns the state key holding one topic's result.
func TopicKey(topic string) string {
	return topicKeyPrefix + topic
}

// llmStage is a Stage backed by one provider call: build the input from the
// state, send it with the fixed instruction, validate the output and store it
// under the output key.
type llmStage struct {
	name      string
	outputKey string
	prov      provider.Provider
	system    string
	buildUser func(state State) (string, error)
	validate  func(raw string) (interface{}, error)
}

func (s *llmStage) Name() string      { return s.name }
func (s *llmStage) OutputKey() string { return s.outputKey }

func (s *llmStage) Run(ctx context.Context, state State) error {
	user, err := s.buildUser(state)
	if err != nil {
		return err
	}
	raw, err := s.prov.CompleteJSON(ctx, s.system, user)
	if err != nil {
		return fmt.Errorf("provider call: %w", err)
	}
	out, err := s.validate(raw)
	if err != nil {
		return err
	}
	state[s.outputKey] = out
	return nil
}

func stringKey(state State, key string) (string, error) {
	v, ok := state[key]
	if !ok {
		return "", fmt.Errorf("state missing key %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("state key %q is not a string", key)
	}
	return s, nil
}

func passthrough(raw string) (interface{}, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty stage output")
	}
	return raw, nil
}

// NewNarrativePipeline chains information extraction, summarization and
// citation into the sequential narrative pipeline.
func NewNarrativePipeline(prov provider.Provider, stageTimeout time.Duration, logger *log.Logger) *Sequential {
	extraction := &llmStage{
		name:      "information_extraction",
		outputKey: KeyExtracted,
		prov:      prov,
		system:    extractionInstruction,
		buildUser: func(state State) (string, error) {
			articles, err := stringKey(state, KeyArticles)
			if err != nil {
				return "", err
			}
			runCtx, _ := stringKey(state, KeyRunContext)
			return fmt.Sprintf("CONTEXT: %s\n\nARTICLES:\n%s", runCtx, articles), nil
		},
		validate: passthrough,
	}

	summarizer := &llmStage{
		name:      "information_summarizer",
		outputKey: KeySummary,
		prov:      prov,
		system:    summarizerInstruction,
		buildUser: func(state State) (string, error) {
			extracted, err := stringKey(state, KeyExtracted)
			if err != nil {
				return "", err
			}
			return "EXTRACTED INFORMATION:\n" + extracted, nil
		},
		validate: passthrough,
	}

	citation := &llmStage{
		name:      "information_citation",
		outputKey: KeyCited,
		prov:      prov,
		system:    citationInstruction,
		buildUser: func(state State) (string, error) {
			summary, err := stringKey(state, KeySummary)
			if err != nil {
				return "", err
			}
			articles, err := stringKey(state, KeyArticles)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("SUMMARY:\n%s\n\nARTICLES:\n%s", summary, articles), nil
		},
		validate: func(raw string) (interface{}, error) {
			n, err := analysis.ParseNarrative(raw)
			if err != nil {
				return nil, err
			}
			return n, nil
		},
	}

	return NewSequential("narrative", stageTimeout, logger, extraction, summarizer, citation)
}

// NarrativeFromState extracts the final narrative result from a completed
// sequential run.
func NarrativeFromState(state State) (analysis.Narrative, error) {
	v, ok := state[KeyCited]
	if !ok {
		return analysis.Narrative{}, fmt.Errorf("state missing key %q", KeyCited)
	}
	n, ok := v.(analysis.Narrative)
	if !ok {
		return analysis.Narrative{}, fmt.Errorf("state key %q has unexpected type %T", KeyCited, v)
	}
	return n, nil
}

// NewTopicStage builds the per-topic analysis stage for the parallel
// pipeline. Every instance reads the same article payload and writes an
// independent topic key.
func NewTopicStage(topic string, prov provider.Provider) Stage {
	return &llmStage{
		name:      topic,
		outputKey: TopicKey(topic),
		prov:      prov,
		system:    topicInstruction(topic),
		buildUser: func(state State) (string, error) {
			articles, err := stringKey(state, KeyArticles)
			if err != nil {
				return "", err
			}
			runCtx, _ := stringKey(state, KeyRunContext)
			return fmt.Sprintf("CONTEXT: %s\n\nARTICLES:\n%s", runCtx, articles), nil
		},
		validate: func(raw string) (interface{}, error) {
			t, err := analysis.ParseTopicResult(raw)
			if err != nil {
				return nil, err
			}
			return t, nil
		},
	}
}

// NewTopicPipeline fans one stage per topic out over the shared input.
func NewTopicPipeline(prov provider.Provider, topics []string, stageTimeout time.Duration, logger *log.Logger) *Parallel {
	stages := make([]Stage, 0, len(topics))
	for _, topic := range topics {
		stages = append(stages, NewTopicStage(topic, prov))
	}
	return NewParallel("topics", stageTimeout, logger, stages...)
}

// TopicsFromState collects per-topic results from a completed parallel run.
// Topics whose stage failed have no key and are simply absent.
func TopicsFromState(state State, topics []string) analysis.TopicCollection {
	out := make(analysis.TopicCollection, len(topics))
	for _, topic := range topics {
		v, ok := state[TopicKey(topic)]
		if !ok {
			continue
		}
		if t, ok := v.(analysis.TopicResult); ok {
			out[topic] = t
		}
	}
	return out
}
