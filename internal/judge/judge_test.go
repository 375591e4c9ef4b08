package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedJudge(t *testing.T) {
	v, err := FixedJudge{Score: 100}.Judge(context.Background(), "go", "package main", "two-sum")
	require.NoError(t, err)
	assert.True(t, v.Accepted())
	assert.Equal(t, 100, v.Score)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FixedJudge{Score: 100}.Judge(ctx, "go", "", "two-sum")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPJudge(t *testing.T) {
	tcases := []struct {
		name     string
		handler  http.HandlerFunc
		expected Verdict
		wantErr  bool
	}{
		{
			name: "accepted",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var req judgeRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChallengeId != "two-sum" {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				w.Write([]byte(`{"status":"accepted","score":80,"output":"ok"}`))
			},
			expected: Verdict{Status: types.SubmissionAccepted, Score: 80, Output: "ok"},
		},
		{
			name: "rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"rejected","output":"wrong answer"}`))
			},
			expected: Verdict{Status: types.SubmissionRejected, Output: "wrong answer"},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: true,
		},
		{
			name: "unknown status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"pending"}`))
			},
			wantErr: true,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{`))
			},
			wantErr: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			v, err := NewHTTPJudge(srv.URL, time.Second).Judge(context.Background(), "go", "package main", "two-sum")
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, v)
		})
	}
}

func TestHTTPJudgeHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewHTTPJudge(srv.URL, 10*time.Second).Judge(ctx, "go", "", "two-sum")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
