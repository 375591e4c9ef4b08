// Package judge evaluates submitted code.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/types"
)

const maxResponseSize = 1 << 20

type Verdict struct {
	Status types.SubmissionStatus `json:"status"`
	Score  int                    `json:"score"`
	Output string                 `json:"output,omitempty"`
}

func (v Verdict) Accepted() bool {
	return v.Status == types.SubmissionAccepted
}

// Judge runs code against a challenge. Implementations must honour ctx
// cancellation.
type Judge interface {
	Judge(ctx context.Context, language, code, challengeId string) (Verdict, error)
}

// FixedJudge accepts every submission with the same score.
type FixedJudge struct {
	Score int
}

func (j FixedJudge) Judge(ctx context.Context, _, _, _ string) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	return Verdict{Status: types.SubmissionAccepted, Score: j.Score, Output: "accepted"}, nil
}

type judgeRequest struct {
	Language    string `json:"language"`
	Code        string `json:"code"`
	ChallengeId string `json:"challenge_id"`
}

// HTTPJudge posts submissions to a remote evaluation service.
type HTTPJudge struct {
	url    string
	client *http.Client
}

func NewHTTPJudge(url string, timeout time.Duration) *HTTPJudge {
	return &HTTPJudge{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (j *HTTPJudge) Judge(ctx context.Context, language, code, challengeId string) (Verdict, error) {
	body, err := json.Marshal(judgeRequest{Language: language, Code: code, ChallengeId: challengeId})
	if err != nil {
		return Verdict{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("call judge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return Verdict{}, fmt.Errorf("judge returned %d", resp.StatusCode)
	}

	var v Verdict
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&v); err != nil {
		return Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}

	switch v.Status {
	case types.SubmissionAccepted, types.SubmissionRejected:
	default:
		return Verdict{}, fmt.Errorf("unexpected verdict status %q", v.Status)
	}
	if v.Score < 0 {
		return Verdict{}, errors.New("negative verdict score")
	}

	return v, nil
}
