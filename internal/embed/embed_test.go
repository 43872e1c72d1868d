// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/trialmatch/internal/httputil"
	"github.com/pdiddy/trialmatch/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// --- hash ---

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	a, err := e.Embed(context.Background(), "Platelet count >= 100,000/uL")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "Platelet count >= 100,000/uL")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, dot(a, a), 1e-5, "vectors are unit length")
}

func TestHashEmbedder_Similarity(t *testing.T) {
	e := NewHashEmbedder(0)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "metastatic breast cancer")
	near, _ := e.Embed(ctx, "Women with metastatic breast cancer after endocrine therapy")
	far, _ := e.Embed(ctx, "Type 2 diabetes on insulin")

	assert.Greater(t, dot(q, near), dot(q, far))
}

func TestHashEmbedder_Errors(t *testing.T) {
	e := NewHashEmbedder(8)
	for _, text := range []string{"", "   \n", "!!! ---"} {
		_, err := e.Embed(context.Background(), text)
		assert.ErrorIs(t, err, types.ErrEmbedding, "text %q", text)
	}
}

func TestWithDimension(t *testing.T) {
	e := WithDimension(NewHashEmbedder(16), 32)
	_, err := e.Embed(context.Background(), "anything")
	assert.ErrorIs(t, err, types.ErrEmbedding)
	assert.Contains(t, err.Error(), "dimension 16, want 32")

	ok := WithDimension(NewHashEmbedder(16), 16)
	vec, err := ok.Embed(context.Background(), "anything")
	require.NoError(t, err)
	assert.Len(t, vec, 16)
	assert.Equal(t, "hash-16", ID(ok))
}

// --- http ---

func TestHTTPEmbedder(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, "breast cancer", req.Input)
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer ts.Close()

	e := &HTTPEmbedder{BaseURL: ts.URL + "/v1/", APIKey: "key", Model: "text-embedding-3-small", Client: ts.Client()}
	vec, err := e.Embed(context.Background(), "breast cancer")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPEmbedder_Failures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty/embeddings" {
			w.Write([]byte(`{"data":[]}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	e := &HTTPEmbedder{BaseURL: ts.URL, Client: ts.Client()}
	_, err := e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, types.ErrEmbedding)
	var se *httputil.StatusError
	assert.ErrorAs(t, err, &se)

	e.BaseURL = ts.URL + "/empty"
	_, err = e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, types.ErrEmbedding)

	unreachable := &HTTPEmbedder{BaseURL: "http://127.0.0.1:1"}
	_, err = unreachable.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, types.ErrEmbedding)
}

// --- bedrock ---

type fakeInvoke struct {
	body []byte
	err  error
	in   *bedrockruntime.InvokeModelInput
}

func (f *fakeInvoke) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func TestBedrockEmbedder(t *testing.T) {
	api := &fakeInvoke{body: []byte(`{"embedding":[1,0,0.5]}`)}
	e := NewBedrockEmbedder(api, "")

	vec, err := e.Embed(context.Background(), "ECOG 0-1")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0.5}, vec)
	assert.Equal(t, defaultTitanModel, *api.in.ModelId)
	assert.JSONEq(t, `{"inputText":"ECOG 0-1"}`, string(api.in.Body))

	_, err = NewBedrockEmbedder(&fakeInvoke{err: errors.New("denied")}, "m").Embed(context.Background(), "x")
	assert.ErrorIs(t, err, types.ErrEmbedding)

	_, err = NewBedrockEmbedder(&fakeInvoke{body: []byte(`{"embedding":[]}`)}, "m").Embed(context.Background(), "x")
	assert.ErrorIs(t, err, types.ErrEmbedding)
}

// --- caching ---

type countingEmbedder struct {
	calls int32
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&c.calls, 1)
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) ID() string { return "counting" }

func TestCached_LRU(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCached(inner, CacheOptions{Size: 2})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		vec, err := c.Embed(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, []float32{3, 1}, vec)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
	assert.Equal(t, "counting", c.ID())

	_, err = c.Embed(ctx, " ")
	assert.ErrorIs(t, err, types.ErrEmbedding)
}

func TestCached_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	shared := NewRedisCache(client, time.Hour)
	ctx := context.Background()

	first := &countingEmbedder{}
	c1, err := NewCached(first, CacheOptions{Shared: shared})
	require.NoError(t, err)
	_, err = c1.Embed(ctx, "KRAS mutation")
	require.NoError(t, err)

	key := redisKeyPrefix + cacheKey("counting", "KRAS mutation")
	assert.True(t, mr.Exists(key))
	ttl := mr.TTL(key)
	assert.Equal(t, time.Hour, ttl)

	// A second process with an empty LRU reads the shared entry.
	second := &countingEmbedder{}
	c2, err := NewCached(second, CacheOptions{Size: 4, Shared: shared})
	require.NoError(t, err)
	vec, err := c2.Embed(ctx, "KRAS mutation")
	require.NoError(t, err)
	assert.Equal(t, []float32{13, 1}, vec)
	assert.Equal(t, int32(0), atomic.LoadInt32(&second.calls))
}

func TestCached_RedisDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	mr.Close()

	inner := &countingEmbedder{}
	c, err := NewCached(inner, CacheOptions{Shared: NewRedisCache(client, 0)})
	require.NoError(t, err)

	vec, err := c.Embed(context.Background(), "hemoglobin")
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 1}, vec)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
}

func TestNew(t *testing.T) {
	e, err := New(context.Background(), types.EmbeddingConfig{Backend: types.EmbeddingHash, Dimension: 32, CacheSize: 8}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Cached{}, e)
	vec, err := e.Embed(context.Background(), "brain metastases")
	require.NoError(t, err)
	assert.Len(t, vec, 32)

	_, err = New(context.Background(), types.EmbeddingConfig{Backend: "bogus"}, nil)
	assert.Error(t, err)
}
