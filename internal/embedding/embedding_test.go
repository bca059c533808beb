package embedding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okandolu/hae-gpt/internal/config"
	"github.com/okandolu/hae-gpt/internal/models"
)

const testDim = 4

// fakeBackend returns a vector whose first value is the text length. Texts
// containing "bad" fail; down makes every call fail.
type fakeBackend struct {
	mu         sync.Mutex
	down       bool
	block      bool
	batchCalls int
	queryCalls int
	dim        int
}

func (f *fakeBackend) vector(text string) []float32 {
	v := make([]float32, f.dim)
	v[0] = float32(len(text))
	v[1] = 1
	return v
}

func (f *fakeBackend) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.down {
		return nil, errors.New("connection refused")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "bad") {
			return nil, errors.New("model rejected input")
		}
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeBackend) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queryCalls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.down {
		return nil, errors.New("connection refused")
	}
	if strings.Contains(text, "bad") {
		return nil, errors.New("model rejected input")
	}
	return f.vector(text), nil
}

func TestEmbedOne(t *testing.T) {
	backend := &fakeBackend{dim: testDim}
	svc := NewService(backend, testDim)

	vec, err := svc.EmbedOne(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1, 0, 0}, vec)
}

func TestEmbedOne_EmptyText(t *testing.T) {
	svc := NewService(&fakeBackend{dim: testDim}, testDim)

	_, err := svc.EmbedOne(context.Background(), "   ")
	assert.ErrorIs(t, err, models.ErrEmptyText)
}

func TestEmbedOne_BackendDown(t *testing.T) {
	svc := NewService(&fakeBackend{dim: testDim, down: true}, testDim)

	_, err := svc.EmbedOne(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
}

func TestEmbedOne_Timeout(t *testing.T) {
	svc := NewService(&fakeBackend{dim: testDim, block: true}, testDim, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := svc.EmbedOne(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEmbedOne_WrongDimension(t *testing.T) {
	svc := NewService(&fakeBackend{dim: 3}, testDim)

	_, err := svc.EmbedOne(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestEmbedMany_PreservesOrder(t *testing.T) {
	backend := &fakeBackend{dim: testDim}
	svc := NewService(backend, testDim, WithBatchSize(2), WithWorkers(3))

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "ggggggg"}
	vecs, err := svc.EmbedMany(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vecs[i][0], "position %d", i)
	}
	assert.Equal(t, 4, backend.batchCalls)
	assert.Zero(t, backend.queryCalls)
}

func TestEmbedBatch_PartialFailures(t *testing.T) {
	backend := &fakeBackend{dim: testDim}
	svc := NewService(backend, testDim, WithBatchSize(3), WithWorkers(2))

	texts := []string{"good one", "", "bad apple", "fine", "also fine"}
	res, err := svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, res.Vectors, len(texts))

	assert.Equal(t, []int{1, 2}, res.Failed)
	assert.Equal(t, make([]float32, testDim), res.Vectors[1])
	assert.Equal(t, make([]float32, testDim), res.Vectors[2])
	assert.Equal(t, float32(len("good one")), res.Vectors[0][0])
	assert.Equal(t, float32(len("fine")), res.Vectors[3][0])
	assert.Equal(t, float32(len("also fine")), res.Vectors[4][0])
	// the batch holding "bad apple" was retried item by item
	assert.Equal(t, 3, backend.queryCalls)
}

func TestEmbedBatch_AllBlank(t *testing.T) {
	svc := NewService(&fakeBackend{dim: testDim}, testDim)

	res, err := svc.EmbedBatch(context.Background(), []string{"", " \n"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, res.Failed)
}

func TestEmbedBatch_Empty(t *testing.T) {
	svc := NewService(&fakeBackend{dim: testDim}, testDim)

	res, err := svc.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Vectors)
}

func TestEmbedMany_BackendUnreachable(t *testing.T) {
	svc := NewService(&fakeBackend{dim: testDim, down: true}, testDim, WithBatchSize(2))

	_, err := svc.EmbedMany(context.Background(), []string{"a", "b", "c"})
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
}

func TestNewEmbedder(t *testing.T) {
	t.Run("ollama", func(t *testing.T) {
		cfg := config.DefaultConfig().Embedding
		svc, err := NewEmbedder(&cfg)
		require.NoError(t, err)
		assert.Equal(t, 1024, svc.Dimension())
		assert.Equal(t, 8, svc.batchSize)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := config.DefaultConfig().Embedding
		cfg.Provider = "bert"
		_, err := NewEmbedder(&cfg)
		assert.Error(t, err)
	})
}
