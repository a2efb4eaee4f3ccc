package education

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensguard/agent/internal/classifier"
)

type fakeFetcher struct {
	result classifier.Education
	err    error
}

func (f *fakeFetcher) Educate(ctx context.Context, baseID string) (classifier.Education, error) {
	return f.result, f.err
}

func TestFetchDecodesFrames(t *testing.T) {
	jpegBytes := []byte("not-really-a-jpeg")
	encoded := base64.StdEncoding.EncodeToString(jpegBytes)

	fetcher := &fakeFetcher{
		result: classifier.Education{
			Frames:      []string{encoded},
			Explanation: "inconsistent lighting",
			Indicators:  []string{"lighting", "edges"},
		},
	}
	fetcher.result.DetectionSummary.IsAI = true
	fetcher.result.DetectionSummary.Confidence = 0.9
	fetcher.result.DetectionSummary.Severity = "HIGH"

	res, err := Fetch(context.Background(), fetcher, "post_1")
	require.NoError(t, err)
	require.Len(t, res.Frames, 1)
	assert.Equal(t, jpegBytes, res.Frames[0])
	assert.Equal(t, "inconsistent lighting", res.Explanation)
	assert.True(t, res.DetectionSummary.IsAI)
	assert.Equal(t, "HIGH", res.DetectionSummary.Severity)
}

func TestFetchDropsUndecodableFramesWithoutFailing(t *testing.T) {
	fetcher := &fakeFetcher{
		result: classifier.Education{
			Frames: []string{"not-valid-base64!!!", base64.StdEncoding.EncodeToString([]byte("ok"))},
		},
	}

	res, err := Fetch(context.Background(), fetcher, "post_1")
	require.NoError(t, err)
	require.Len(t, res.Frames, 1, "bad frame should be dropped")
	assert.Equal(t, "ok", string(res.Frames[0]))
}

func TestFetchPropagatesClientError(t *testing.T) {
	fetcher := &fakeFetcher{err: classifier.ErrNotReady}
	_, err := Fetch(context.Background(), fetcher, "post_1")
	assert.Error(t, err)
}
