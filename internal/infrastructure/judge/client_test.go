package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QAForge/internal/domain"
)

func TestJudgePostsPairAndReadsScore(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/score", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "What color is the sky?", body["question"])
		assert.Equal(t, "Blue", body["answer"])
		assert.Equal(t, "The sky is blue.", body["context"])

		_, _ = w.Write([]byte(`{"score": 0.75}`))
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", "secret")
	score, err := c.Judge(context.Background(), domain.QAPair{Question: "What color is the sky?", Answer: "Blue"}, "The sky is blue.")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, score, 1e-9)
}

func TestJudgeRejectsBadResponses(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		status int
		body   string
	}{
		"server error":  {status: http.StatusBadGateway, body: `{}`},
		"missing score": {status: http.StatusOK, body: `{"verdict": "good"}`},
		"out of range":  {status: http.StatusOK, body: `{"score": 1.5}`},
		"not json":      {status: http.StatusOK, body: `<html>`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, "").Judge(context.Background(), domain.QAPair{}, "")
			require.Error(t, err)
		})
	}
}

func TestJudgeMisconfigured(t *testing.T) {
	t.Parallel()

	_, err := NewClient("", "").Judge(context.Background(), domain.QAPair{}, "")
	require.ErrorContains(t, err, "misconfigured")
}
