package sender

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridge/types"
)

func TestParseBrokers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestBatchMessage(t *testing.T) {
	t.Parallel()

	now := time.Date(2000, 1, 1, 1, 0, 0, 0, time.UTC)
	req := IngestRequest{
		UserID:  "user-1",
		BatchID: "b-1",
		Count:   1,
		Batch:   []types.Sample{{Timestamp: 1}},
		Hash:    "abc",
	}

	msg, err := batchMessage(req, now)
	require.NoError(t, err)
	assert.Equal(t, []byte("user-1"), msg.Key)
	assert.Equal(t, now, msg.Time)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "b-1", string(msg.Headers[0].Value))
	assert.Equal(t, "abc", string(msg.Headers[1].Value))

	var decoded IngestRequest
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, req, decoded)
}
