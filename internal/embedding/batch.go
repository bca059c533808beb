package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/okandolu/hae-gpt/internal/models"
)

// BatchResult holds one vector per input text and the positions that fell
// back to a zero vector.
type BatchResult struct {
	Vectors [][]float32
	Failed  []int
}

// EmbedBatch embeds texts in input order. Blank texts and texts the backend
// fails on get a zero vector and are listed in Failed. The call only fails,
// with ErrServiceUnavailable, when no non-blank text could be embedded.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error) {
	res := &BatchResult{Vectors: make([][]float32, len(texts))}
	if len(texts) == 0 {
		return res, nil
	}

	var pending []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			res.Vectors[i] = make([]float32, s.dimension)
			res.Failed = append(res.Failed, i)
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return res, nil
	}

	var batches [][]int
	for start := 0; start < len(pending); start += s.batchSize {
		end := min(start+s.batchSize, len(pending))
		batches = append(batches, pending[start:end])
	}

	sem := make(chan struct{}, s.workers)
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures int
		lastErr  error
	)

	for _, batch := range batches {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx []int) {
			defer wg.Done()
			defer func() { <-sem }()

			failed, err := s.embedGroup(ctx, texts, idx, res.Vectors)

			mu.Lock()
			defer mu.Unlock()
			res.Failed = append(res.Failed, failed...)
			failures += len(failed)
			if err != nil {
				lastErr = err
			}
		}(batch)
	}
	wg.Wait()

	sort.Ints(res.Failed)

	if failures == len(pending) {
		if lastErr == nil {
			lastErr = errors.New("no text could be embedded")
		}
		if errors.Is(lastErr, models.ErrServiceUnavailable) {
			return nil, lastErr
		}
		return nil, fmt.Errorf("%w: %w", models.ErrServiceUnavailable, lastErr)
	}
	return res, nil
}

// embedGroup fills out[i] for every i in idx. The whole group is sent in one
// request first; on error each text is retried on its own.
func (s *Service) embedGroup(ctx context.Context, texts []string, idx []int, out [][]float32) ([]int, error) {
	group := make([]string, len(idx))
	for j, i := range idx {
		group[j] = texts[i]
	}

	vecs, err := s.embedDocuments(ctx, group)
	if err == nil && len(vecs) == len(idx) {
		var failed []int
		for j, i := range idx {
			if len(vecs[j]) != s.dimension {
				log.Warn().Int("position", i).Int("got", len(vecs[j])).Msg("Embedding has wrong dimension, using zero vector")
				out[i] = make([]float32, s.dimension)
				failed = append(failed, i)
				continue
			}
			out[i] = vecs[j]
		}
		return failed, nil
	}
	if err == nil {
		err = fmt.Errorf("backend returned %d vectors for %d texts", len(vecs), len(idx))
	}
	log.Warn().Err(err).Int("size", len(idx)).Msg("Batch embedding failed, retrying one by one")

	var (
		failed  []int
		lastErr error
	)
	for _, i := range idx {
		vec, err := s.embedQuery(ctx, texts[i])
		if err != nil {
			log.Warn().Err(err).Int("position", i).Msg("Embedding failed, using zero vector")
			out[i] = make([]float32, s.dimension)
			failed = append(failed, i)
			lastErr = err
			continue
		}
		out[i] = vec
	}
	return failed, lastErr
}

func (s *Service) embedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.backend.EmbedDocuments(ctx, texts)
}
