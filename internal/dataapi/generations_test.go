package dataapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

// TestGenerationDecode verifies that a generation record round-trips with
// its payload and lineage metadata intact.
func TestGenerationDecode(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"_id":             "gen-1",
			"toolId":          "tool-img",
			"toolDisplayName": "Quick Image",
			"masterAccountId": "m1",
			"status":          "completed",
			"deliveryStatus":  "pending",
			"requestPayload": map[string]any{
				"input_prompt": "a cat",
				"input_seed":   float64(100),
			},
			"responsePayload": []map[string]any{
				{"data": map[string]any{"images": []map[string]any{{"url": "https://cdn/x.png"}}}},
			},
			"metadata": map[string]any{
				"userInputPrompt":   "a cat",
				"telegramChatId":    int64(555),
				"telegramMessageId": 10,
				"rerunCount":        2,
			},
		})
	}))

	rec, err := c.Generation(context.Background(), "gen-1")
	if err != nil {
		t.Fatalf("Generation: %v", err)
	}
	if rec.ID != "gen-1" || rec.Status != "completed" {
		t.Errorf("record = %+v", rec)
	}
	if rec.RequestPayload["input_prompt"] != "a cat" {
		t.Errorf("payload = %v", rec.RequestPayload)
	}
	if rec.Metadata.RerunCount != 2 || rec.Metadata.TelegramChatID != 555 {
		t.Errorf("metadata = %+v", rec.Metadata)
	}
	if len(rec.Responses) != 1 || rec.Responses[0].Data.Images[0].URL != "https://cdn/x.png" {
		t.Errorf("responses = %+v", rec.Responses)
	}
}

// TestExecute verifies the execute request shape and handshake fields.
func TestExecute(t *testing.T) {
	var got ExecuteRequest
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/v1/data/execute" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{"generationId": "gen-2", "runId": "run-9"})
	}))

	res, err := c.Execute(context.Background(), &ExecuteRequest{
		ToolID:  "tool-img",
		Inputs:  map[string]any{"input_prompt": "a dog"},
		User:    ExecuteUser{MasterAccountID: "m1", Platform: "telegram"},
		EventID: "ev-1",
		Metadata: GenerationMeta{
			GenerationID: "gen-2",
			IsRerun:      true,
			RerunFrom:    "gen-1",
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.GenerationID != "gen-2" || res.RunID != "run-9" {
		t.Errorf("result = %+v", res)
	}
	if got.EventID != "ev-1" || got.User.MasterAccountID != "m1" {
		t.Errorf("request = %+v", got)
	}
	if !got.Metadata.IsRerun || got.Metadata.RerunFrom != "gen-1" {
		t.Errorf("metadata = %+v", got.Metadata)
	}
}

// TestRateGeneration verifies the rating endpoint path and body.
func TestRateGeneration(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := c.RateGeneration(context.Background(), "gen-1", "beautiful", "m1"); err != nil {
		t.Fatalf("RateGeneration: %v", err)
	}
	if gotPath != "/internal/v1/data/generations/rate_gen/gen-1" {
		t.Errorf("path = %s", gotPath)
	}
	if gotBody["kind"] != "beautiful" || gotBody["masterAccountId"] != "m1" {
		t.Errorf("body = %v", gotBody)
	}
}

// TestLogEventFillsDefaults verifies that event id and timestamp are
// assigned when the caller omits them.
func TestLogEventFillsDefaults(t *testing.T) {
	var got Event
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))

	err := c.LogEvent(context.Background(), Event{
		Type:            "rerun_clicked",
		MasterAccountID: "m1",
		Payload:         map[string]any{"generationId": "gen-1"},
	})
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if got.EventID == "" {
		t.Error("event id not assigned")
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}
	if got.Type != "rerun_clicked" {
		t.Errorf("type = %s", got.Type)
	}
}

// TestMostFrequentTools verifies the usage summary query.
func TestMostFrequentTools(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "4" {
			t.Errorf("limit = %s", r.URL.Query().Get("limit"))
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"toolId": "tool-img", "count": 12},
			{"toolId": "tool-vid", "count": 3},
		})
	}))

	usage, err := c.MostFrequentTools(context.Background(), "m1", 4)
	if err != nil {
		t.Fatalf("MostFrequentTools: %v", err)
	}
	if len(usage) != 2 || usage[0].ToolID != "tool-img" || usage[0].Count != 12 {
		t.Errorf("usage = %+v", usage)
	}
}
