package sender

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridge/types"
)

const baseURL = "https://cloud.test/api"

func newMockedClient(t *testing.T) *HTTPClient {
	t.Helper()
	c := NewHTTPClient(HTTPConfig{BaseURL: baseURL, Timeout: time.Second}, nil)
	httpmock.ActivateNonDefault(c.http.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func heartRate(v float64) *float64 { return &v }

func TestHTTPClient_Push(t *testing.T) {
	c := newMockedClient(t)

	var got SnapshotRequest
	var idempotencyKey string
	httpmock.RegisterResponder(http.MethodPost, baseURL+"/sensor", func(req *http.Request) (*http.Response, error) {
		idempotencyKey = req.Header.Get("Idempotency-Key")
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &got); err != nil {
			return nil, err
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"message":"ok"}`), nil
	})

	snapshot := types.Sample{Timestamp: 1732234567000, Vitals: &types.Vitals{HeartRate: heartRate(72)}}
	require.NoError(t, c.Push(context.Background(), snapshot, "user-1"))
	require.NoError(t, c.Push(context.Background(), snapshot, "user-1"))

	assert.Equal(t, 2, httpmock.GetTotalCallCount())
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, int64(1732234567000), got.Data.Timestamp)
	assert.InDelta(t, 72.0, *got.Data.Vitals.HeartRate, 0.001)
	assert.Len(t, idempotencyKey, 64)
}

func TestHTTPClient_PushErrors(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, baseURL+"/sensor", httpmock.NewStringResponder(http.StatusServiceUnavailable, "down"))
	err := c.Push(context.Background(), types.Sample{Timestamp: 1}, "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Equal(t, "down", statusErr.Body)

	httpmock.RegisterResponder(http.MethodPost, baseURL+"/sensor", httpmock.NewErrorResponder(errors.New("connection refused")))
	err = c.Push(context.Background(), types.Sample{Timestamp: 1}, "user-1")
	assert.ErrorContains(t, err, "connection refused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.Push(ctx, types.Sample{Timestamp: 1}, "user-1"))
}

func TestHTTPClient_Pull(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodGet, baseURL+"/state/user-1", httpmock.NewStringResponder(http.StatusOK, `{
		"mood": "Sleepy",
		"energy": 0,
		"timestamp": 1732234567000,
		"message": "time for a nap",
		"animation": "sleep",
		"hapticPattern": "gentle",
		"image_url": "https://cdn.test/sleepy.png"
	}`))

	state, err := c.Pull(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, types.RemoteState{
		Mood:          types.MoodSleepy,
		Energy:        0,
		Timestamp:     1732234567000,
		Message:       "time for a nap",
		Animation:     types.AnimationSleep,
		HapticPattern: types.HapticGentle,
		ImageURL:      "https://cdn.test/sleepy.png",
	}, *state)
}

func TestHTTPClient_PullZeroTimestamp(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodGet, baseURL+"/state/user-1", httpmock.NewStringResponder(http.StatusOK, `{"mood":"Happy","energy":50,"timestamp":0}`))

	state, err := c.Pull(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, types.MoodHappy, state.Mood)
	assert.Equal(t, int64(0), state.Timestamp)
}

func TestHTTPClient_PullAbsent(t *testing.T) {
	c := newMockedClient(t)

	for _, responder := range []httpmock.Responder{
		httpmock.NewStringResponder(http.StatusNoContent, ""),
		httpmock.NewStringResponder(http.StatusNotFound, `{"error":"no state"}`),
		httpmock.NewStringResponder(http.StatusOK, "null"),
		httpmock.NewStringResponder(http.StatusOK, ""),
	} {
		httpmock.RegisterResponder(http.MethodGet, baseURL+"/state/user-1", responder)
		state, err := c.Pull(context.Background(), "user-1")
		assert.NoError(t, err)
		assert.Nil(t, state)
	}
}

func TestHTTPClient_PullInvalid(t *testing.T) {
	c := newMockedClient(t)

	cases := map[string]string{
		"unknown mood":      `{"mood":"Angry","energy":50,"timestamp":1}`,
		"energy too high":   `{"mood":"Happy","energy":150,"timestamp":1}`,
		"negative energy":   `{"mood":"Happy","energy":-1,"timestamp":1}`,
		"missing energy":    `{"mood":"Happy","timestamp":1}`,
		"missing timestamp": `{"mood":"Happy","energy":50}`,
		"not json":          `<html>`,
	}
	for name, body := range cases {
		httpmock.RegisterResponder(http.MethodGet, baseURL+"/state/user-1", httpmock.NewStringResponder(http.StatusOK, body))
		state, err := c.Pull(context.Background(), "user-1")
		assert.ErrorIs(t, err, ErrInvalidState, name)
		assert.Nil(t, state, name)
	}
}

func TestHTTPClient_PullServerError(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodGet, baseURL+"/state/user-1", httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"))
	state, err := c.Pull(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.NotErrorIs(t, err, ErrInvalidState)
	assert.Nil(t, state)
}

func TestHTTPClient_SendBatch(t *testing.T) {
	c := newMockedClient(t)

	var got IngestRequest
	var idempotencyKey string
	httpmock.RegisterResponder(http.MethodPost, baseURL+"/ingest", func(req *http.Request) (*http.Response, error) {
		idempotencyKey = req.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
			return nil, err
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"samples_count":2}`), nil
	})

	req := IngestRequest{
		UserID:  "user-1",
		BatchID: "b-1",
		Count:   2,
		Batch:   []types.Sample{{Timestamp: 1}, {Timestamp: 2}},
		Hash:    "abc",
	}
	require.NoError(t, c.SendBatch(context.Background(), req))
	assert.Equal(t, "abc", idempotencyKey)
	assert.Equal(t, req, got)

	httpmock.RegisterResponder(http.MethodPost, baseURL+"/ingest", httpmock.NewStringResponder(http.StatusBadRequest, `{"error":"Missing user_id or batch"}`))
	err := c.SendBatch(context.Background(), req)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.False(t, statusErr.Temporary())
}

func TestStatusError_Temporary(t *testing.T) {
	t.Parallel()

	for code, temporary := range map[int]bool{
		http.StatusBadRequest:          false,
		http.StatusUnauthorized:        false,
		http.StatusNotFound:            false,
		http.StatusRequestTimeout:      true,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusGatewayTimeout:      true,
	} {
		assert.Equal(t, temporary, (&StatusError{Code: code}).Temporary(), code)
	}
}
