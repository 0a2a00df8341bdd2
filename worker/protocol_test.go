package worker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageTypeValid(t *testing.T) {
	for _, typ := range []MessageType{TypeProcess, TypeAnalyze, TypeSimplify, TypeCluster, TypeExport} {
		assert.True(t, typ.Valid(), typ)
	}
	assert.False(t, MessageType("render").Valid())
}

func TestRespond(t *testing.T) {
	req := Request{ID: "1", Type: TypeAnalyze, Data: json.RawMessage(`{"n":4}`)}

	resp := Respond(echo(), req)
	assert.Equal(t, "1", resp.ID)
	assert.Equal(t, TypeAnalyze, resp.Type)
	assert.Empty(t, resp.Error)
	assert.JSONEq(t, `{"n":4}`, string(resp.Result))
	assert.Equal(t, 4, resp.Metrics.ObjectsProcessed)

	failing := HandlerFunc(func(Request) (any, int, error) { return nil, 0, errors.New("nope") })
	resp = Respond(failing, req)
	assert.Equal(t, "nope", resp.Error)
	assert.Empty(t, resp.Result)

	var v any
	assert.Error(t, resp.Decode(&v))
}

func TestResponseWireFormat(t *testing.T) {
	data, err := json.Marshal(Response{ID: "7", Type: TypeExport, Error: "x", Metrics: Metrics{Duration: 1.5, ObjectsProcessed: 2}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"7","type":"export","error":"x","metrics":{"duration":1.5,"objectsProcessed":2}}`, string(data))
}

func TestServe(t *testing.T) {
	in := strings.NewReader(
		`{"id":"a","type":"process","data":{"n":1}}` + "\n" +
			`{"id":"b","type":"process","data":{"n":2,"label":"fail"}}` + "\n")
	var out bytes.Buffer

	require.NoError(t, Serve(context.Background(), in, &out, echo()))

	sc := bufio.NewScanner(&out)
	var got []Response
	for sc.Scan() {
		var r Response
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		got = append(got, r)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, 1, got[0].Metrics.ObjectsProcessed)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "bad geometry", got[1].Error)
}

func TestServe_MalformedRequest(t *testing.T) {
	var out bytes.Buffer
	err := Serve(context.Background(), strings.NewReader("{not json\n"), &out, echo())
	require.Error(t, err)

	var r Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &r))
	assert.Empty(t, r.ID)
	assert.Contains(t, r.Error, "malformed request")
}

func TestServe_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Serve(ctx, strings.NewReader(`{"id":"a","type":"process"}`), &bytes.Buffer{}, echo())
	assert.ErrorIs(t, err, context.Canceled)
}
