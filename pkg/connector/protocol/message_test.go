package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestEmptyData(t *testing.T) {
	data, err := json.Marshal(NewRequest(CommandPing, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"ping","data":{}}`, string(data))
}

func TestResponseErrorMessage(t *testing.T) {
	assert.Equal(t, "no object", (&Response{Status: StatusError, Error: "no object", Message: "m"}).ErrorMessage())
	assert.Equal(t, "m", (&Response{Status: StatusError, Message: "m"}).ErrorMessage())
	assert.Contains(t, (&Response{Status: "weird"}).ErrorMessage(), "weird")
}

func TestParseResponse(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"status":"success","data":{"objects":["Cube"]}}`))
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, []interface{}{"Cube"}, resp.Data["objects"])

	_, err = ParseResponse([]byte(`not json`))
	assert.Error(t, err)
}

func TestParsePushStampsTimestamp(t *testing.T) {
	p, err := ParsePush([]byte(`{"type":"progress","workflow_id":"w1","progress":0.4}`))
	require.NoError(t, err)
	assert.Equal(t, PushTypeProgress, p.Type)
	assert.Equal(t, 0.4, p.Progress)
	assert.False(t, p.Timestamp.IsZero())
}
