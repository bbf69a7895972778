package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-autopilot/config"
	"github.com/becomeliminal/nim-autopilot/core"
	"github.com/becomeliminal/nim-autopilot/metrics"
	"github.com/becomeliminal/nim-autopilot/publisher"
	"github.com/becomeliminal/nim-autopilot/scheduler"
	"github.com/becomeliminal/nim-autopilot/state"
)

type idleRunner struct{}

func (idleRunner) RunCycle(ctx context.Context, st core.AgentState) (core.AgentState, error) {
	return st, nil
}

func TestResume_NoCheckpoint(t *testing.T) {
	mr := miniredis.RunT(t)
	store := state.NewFromClient(backend.NewClient(&backend.Options{Addr: mr.Addr()}))

	fresh := core.NewAgentState(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, fresh, resume(context.Background(), store, fresh))
}

func TestResume_FromCheckpoint(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := state.NewFromClient(backend.NewClient(&backend.Options{Addr: mr.Addr()}))

	started := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	reasoning := "supplied 5 USDC"
	require.NoError(t, store.Save(ctx, core.AgentState{
		CycleCount:    41,
		StartedAt:     started,
		LastReasoning: &reasoning,
	}))

	got := resume(ctx, store, core.NewAgentState(time.Now()))
	assert.Equal(t, 41, got.CycleCount)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.LastReasoning)
}

func TestNewMux(t *testing.T) {
	sched := scheduler.New(idleRunner{}, time.Minute)
	feed := publisher.NewFeed()
	defer feed.Close()

	srv := httptest.NewServer(newMux(sched, metrics.New(), feed))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["cycleCount"])

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}

func TestNewBackend(t *testing.T) {
	_, err := newBackend(&config.Config{LLMProvider: "anthropic", LLMAPIKey: "k"}, http.DefaultClient)
	assert.NoError(t, err)

	_, err = newBackend(&config.Config{LLMProvider: "openai", LLMAPIKey: "k", LLMBaseURL: "http://localhost"}, http.DefaultClient)
	assert.NoError(t, err)

	_, err = newBackend(&config.Config{LLMProvider: "mystery"}, http.DefaultClient)
	assert.Error(t, err)
}
