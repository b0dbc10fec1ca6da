package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_UnmarshalJSON(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":17,"b":"x-17","c":null}`), &v))
	assert.Equal(t, ID("17"), v.A)
	assert.Equal(t, ID("x-17"), v.B)
	assert.Equal(t, ID(""), v.C)

	assert.Error(t, json.Unmarshal([]byte(`{"a":1.5}`), &v))
}

func TestParseNotification(t *testing.T) {
	n, err := ParseNotification([]byte(`{
		"id": 1,
		"is_read": true,
		"user_id": "u1",
		"target": {"kind": "comment", "id": "9"},
		"message": "replied",
		"created_at": "2024-05-01T10:00:00Z"
	}`))
	require.NoError(t, err)

	assert.Equal(t, ID("1"), n.ID)
	assert.Equal(t, TypeGeneric, n.Type)
	assert.True(t, n.IsRead)
	assert.Equal(t, Target{Kind: TargetComment, ID: "9"}, n.Target)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), n.CreatedAt)

	_, err = ParseNotification([]byte(`{"message":"no id"}`))
	assert.Error(t, err)

	_, err = ParseNotification([]byte(`{`))
	assert.Error(t, err)
}

func TestNotification_CamelCaseFields(t *testing.T) {
	n, err := ParseNotification([]byte(`{
		"id": 1,
		"isRead": true,
		"userId": "u1",
		"message": "hi",
		"createdAt": "2024-05-01T10:00:00Z"
	}`))
	require.NoError(t, err)

	assert.True(t, n.IsRead)
	assert.Equal(t, "u1", n.UserID)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), n.CreatedAt.UTC())

	n, err = ParseNotification([]byte(`{"id": 2, "isRead": true, "is_read": false}`))
	require.NoError(t, err)
	assert.False(t, n.IsRead, "snake_case wins")

	n, err = ParseNotification([]byte(`{"id": 3, "isRead": false}`))
	require.NoError(t, err)
	assert.False(t, n.IsRead)
}

func TestHeartbeatState_Stale(t *testing.T) {
	now := time.Unix(1000, 0)

	assert.False(t, HeartbeatState{}.Stale(now, time.Minute))
	assert.False(t, HeartbeatState{LastAt: now.Add(-59 * time.Second)}.Stale(now, time.Minute))
	assert.True(t, HeartbeatState{LastAt: now.Add(-60 * time.Second)}.Stale(now, time.Minute))
}

func TestConnectionStatus(t *testing.T) {
	assert.Equal(t, "idle", ConnectionStatus(0).String())
	assert.True(t, StatusError.IsTerminal())
	assert.True(t, StatusReconnecting.IsDegraded())
	assert.False(t, StatusConnected.IsDegraded())
}
