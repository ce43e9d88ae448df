package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"ragex-demo/internal/dispatch"
	"ragex-demo/internal/models"
)

func TestRunOnce_Demo(t *testing.T) {
	var buf bytes.Buffer

	ok, err := runOnce(context.Background(), dispatch.New(), &runCmd{Demo: true, Query: "hello", TopK: 3}, &buf)

	require.NoError(t, err)
	require.True(t, ok)
	var out struct {
		Kind    models.OutcomeKind `json:"kind"`
		Payload models.DemoPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, models.OutcomeDemo, out.Kind)
	require.Equal(t, "hello", out.Payload.Query)
	require.Contains(t, buf.String(), "\n  \"kind\"")
}

func TestRunOnce_ValidationErrorIsNotSuccess(t *testing.T) {
	var buf bytes.Buffer

	ok, err := runOnce(context.Background(), dispatch.New(), &runCmd{Endpoint: "http://127.0.0.1:1", TopK: 3}, &buf)

	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, buf.String(), `"validation_error"`)
}

func TestRunOnce_LiveCall(t *testing.T) {
	var gotKey, gotBody string
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(dispatch.AccessKeyHeader)
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"error":"upstream"}`)
	}))
	defer remote.Close()

	var buf bytes.Buffer
	ok, err := runOnce(context.Background(), dispatch.New(), &runCmd{Endpoint: remote.URL, Key: "K", Query: "q", TopK: 4}, &buf)

	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "K", gotKey)
	require.JSONEq(t, `{"query":"q","top_k":4}`, gotBody)
	require.Contains(t, buf.String(), "Function returned HTTP 502")
}
