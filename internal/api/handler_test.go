// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmx-life/internal/config"
	"dmx-life/internal/controller"
	"dmx-life/internal/dmx"
	"dmx-life/internal/output"
)

const testYAML = `
fixtures:
  - name: Spot
    type: Generic
    start_channel: 1
scenes:
  - name: Half
    channels: [128]
`

func newTestHandler(t *testing.T) (*Handler, *[]*output.Mock) {
	t.Helper()
	cfg, err := config.Parse([]byte(testYAML))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	built := &[]*output.Mock{}
	engine := dmx.NewEngine(dmx.NewMonitor(logger), logger)
	ctrl := controller.New(config.NewStaticStore(cfg, logger), engine, logger,
		controller.WithFactory(output.MockFactory(built)))
	require.NoError(t, ctrl.Start())
	t.Cleanup(func() { ctrl.Close() })

	return NewHandler(ctrl), built
}

func TestHandleActivate(t *testing.T) {
	h, _ := newTestHandler(t)

	resp := h.Handle(context.Background(), &Request{Cmd: "activate", Scene: "Half"})
	require.Equal(t, "ok", resp.Type, resp.Error)

	st, ok := resp.Data.(controller.Status)
	require.True(t, ok)
	assert.Equal(t, "Half", st.ActiveScene)
}

func TestHandleActivateErrors(t *testing.T) {
	h, _ := newTestHandler(t)

	resp := h.Handle(context.Background(), &Request{Cmd: "activate"})
	assert.Equal(t, "error", resp.Type)
	assert.Equal(t, "scene required", resp.Error)

	resp = h.Handle(context.Background(), &Request{Cmd: "activate", Scene: "Missing"})
	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Error, "Missing")
}

func TestHandleTestSendsImmediately(t *testing.T) {
	h, built := newTestHandler(t)

	resp := h.Handle(context.Background(), &Request{Cmd: "test", Values: []int{10, 20}})
	require.Equal(t, "ok", resp.Type, resp.Error)

	last, ok := (*built)[0].Last()
	require.True(t, ok)
	assert.Equal(t, byte(10), last[0])
	assert.Equal(t, byte(20), last[1])

	resp = h.Handle(context.Background(), &Request{Cmd: "test"})
	assert.Equal(t, "values required", resp.Error)
}

func TestHandleSwitchKeepsKindWhenEmpty(t *testing.T) {
	h, built := newTestHandler(t)

	resp := h.Handle(context.Background(), &Request{
		Cmd:    "switch",
		Config: json.RawMessage(`{"artnet":{"universe":3}}`),
	})
	require.Equal(t, "ok", resp.Type, resp.Error)
	require.Len(t, *built, 1, "same kind reconfigures in place")
	assert.Equal(t, 3, (*built)[0].Config().ArtNet.Universe)
}

func TestHandleJSON(t *testing.T) {
	h, _ := newTestHandler(t)

	var resp Response
	require.NoError(t, json.Unmarshal(h.HandleJSON(context.Background(), []byte(`{"cmd":"scenes"}`)), &resp))
	assert.Equal(t, "scenes", resp.Type)

	require.NoError(t, json.Unmarshal(h.HandleJSON(context.Background(), []byte(`{"cmd":`)), &resp))
	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Error, "invalid JSON")

	require.NoError(t, json.Unmarshal(h.HandleJSON(context.Background(), []byte(`{"cmd":"dance"}`)), &resp))
	assert.Equal(t, "unknown command: dance", resp.Error)
}

func TestHandleQueries(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	for _, cmd := range []string{"status", "connection", "history", "scenes", "output", "fixtures"} {
		resp := h.Handle(ctx, &Request{Cmd: cmd})
		assert.Equal(t, cmd, resp.Type)
	}
}
