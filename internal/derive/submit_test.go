package derive

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
)

type fakeAPI struct {
	created  []*dataapi.GenerationCreate
	executed []*dataapi.ExecuteRequest
	patches  map[string][]map[string]any
	events   []dataapi.Event
	prefs    map[string]any
	prefsErr error
	execErr  error
	nextID   int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		patches:  make(map[string][]map[string]any),
		prefsErr: &dataapi.APIError{Status: 404, Message: "no preferences"},
	}
}

func (f *fakeAPI) CreateGeneration(ctx context.Context, gc *dataapi.GenerationCreate) (*dataapi.GenerationRecord, error) {
	f.created = append(f.created, gc)
	f.nextID++
	return &dataapi.GenerationRecord{
		ID:              "new-" + strconv.Itoa(f.nextID),
		ToolID:          gc.ToolID,
		MasterAccountID: gc.MasterAccountID,
		Status:          gc.Status,
		RequestPayload:  gc.RequestPayload,
		Metadata:        gc.Metadata,
	}, nil
}

func (f *fakeAPI) Execute(ctx context.Context, req *dataapi.ExecuteRequest) (*dataapi.ExecuteResult, error) {
	f.executed = append(f.executed, req)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &dataapi.ExecuteResult{GenerationID: req.Metadata.GenerationID, RunID: "run-1"}, nil
}

func (f *fakeAPI) UpdateGeneration(ctx context.Context, id string, patch map[string]any) error {
	f.patches[id] = append(f.patches[id], patch)
	return nil
}

func (f *fakeAPI) LogEvent(ctx context.Context, ev dataapi.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeAPI) ToolPreferences(ctx context.Context, masterAccountID, toolName string) (map[string]any, error) {
	if f.prefsErr != nil {
		return nil, fmt.Errorf("GET preferences: %w", f.prefsErr)
	}
	return f.prefs, nil
}

func imageTool() *dataapi.ToolDefinition {
	return &dataapi.ToolDefinition{
		ToolID:      "tool-img",
		DisplayName: "Quick Image",
		InputSchema: map[string]dataapi.ParamSpec{
			"input_prompt": {Name: "input_prompt", Type: "string"},
			"input_seed":   {Name: "input_seed", Type: "number"},
			"input_steps":  {Name: "input_steps", Type: "integer"},
			"input_cfg":    {Name: "input_cfg", Type: "number"},
		},
	}
}

func ancestorRecord() *dataapi.GenerationRecord {
	return &dataapi.GenerationRecord{
		ID:              "gen-1",
		ToolID:          "tool-img",
		ToolDisplayName: "Quick Image",
		MasterAccountID: "m1",
		Status:          dataapi.StatusCompleted,
		RequestPayload: map[string]any{
			"input_prompt": "a cat",
			"input_seed":   float64(100),
			"input_steps":  float64(20),
		},
		Metadata: dataapi.GenerationMeta{
			UserInputPrompt:   "a cat",
			InitiatingEventID: "ev-origin",
			Notification:      &dataapi.NotificationContext{ChatID: 555, ReplyToMessageID: 90},
		},
	}
}

// TestMutateSeed verifies the rerun seed rule: numeric increments by one,
// everything else becomes a fresh 32-bit value.
func TestMutateSeed(t *testing.T) {
	inputs := map[string]any{"input_seed": float64(100)}
	MutateSeed(inputs)
	if inputs["input_seed"] != float64(101) {
		t.Errorf("numeric seed = %v, want 101", inputs["input_seed"])
	}

	inputs = map[string]any{"input_seed": int64(7)}
	MutateSeed(inputs)
	if inputs["input_seed"] != int64(8) {
		t.Errorf("int64 seed = %v, want 8", inputs["input_seed"])
	}

	inputs = map[string]any{"input_seed": "randomize"}
	MutateSeed(inputs)
	checkRandomSeed(t, inputs["input_seed"])

	inputs = map[string]any{}
	MutateSeed(inputs)
	checkRandomSeed(t, inputs["input_seed"])
}

func checkRandomSeed(t *testing.T, v any) {
	t.Helper()
	n, ok := v.(int64)
	if !ok {
		t.Fatalf("random seed type = %T", v)
	}
	if n < 0 || n >= 1<<31 {
		t.Errorf("random seed %d outside [0, 2^31)", n)
	}
}

// TestFilterInputs verifies that internal keys and non-schema keys never
// reach a submission payload.
func TestFilterInputs(t *testing.T) {
	schema := imageTool().InputSchema
	got := FilterInputs(schema, map[string]any{
		"input_prompt":  "a cat",
		"input_seed":    float64(100),
		"__aliasedFrom": "gen-0",
		"__menuMsgId":   42,
		"stray_field":   "junk",
	})

	if len(got) != 2 {
		t.Fatalf("filtered = %v", got)
	}
	if got["input_prompt"] != "a cat" || got["input_seed"] != float64(100) {
		t.Errorf("filtered = %v", got)
	}
}

// TestRerun verifies clone-and-vary derivation: seed bumped, preferences
// merged underneath the payload, and lineage metadata set.
func TestRerun(t *testing.T) {
	api := newFakeAPI()
	api.prefsErr = nil
	api.prefs = map[string]any{
		"input_steps": float64(50),
		"input_cfg":   float64(7),
	}
	s := NewSubmitter(api, "telegram", nil)

	genID, err := s.Rerun(context.Background(), imageTool(), ancestorRecord(), "m1")
	if err != nil {
		t.Fatalf("Rerun: %v", err)
	}
	if genID != "new-1" {
		t.Errorf("genID = %q", genID)
	}

	if len(api.executed) != 1 {
		t.Fatalf("executed %d times", len(api.executed))
	}
	req := api.executed[0]
	if req.Inputs["input_seed"] != float64(101) {
		t.Errorf("seed = %v, want 101", req.Inputs["input_seed"])
	}
	if req.Inputs["input_steps"] != float64(20) {
		t.Errorf("payload did not win over preference: %v", req.Inputs["input_steps"])
	}
	if req.Inputs["input_cfg"] != float64(7) {
		t.Errorf("preference gap not filled: %v", req.Inputs["input_cfg"])
	}

	meta := req.Metadata
	if !meta.IsRerun || meta.RerunFrom != "gen-1" || meta.RerunCount != 1 {
		t.Errorf("lineage = %+v", meta)
	}
	if meta.InitiatingEventID != "ev-origin" {
		t.Errorf("initiating event = %q, want reuse", meta.InitiatingEventID)
	}
	if meta.Notification == nil || meta.Notification.ChatID != 555 {
		t.Errorf("notification = %+v", meta.Notification)
	}

	if len(api.events) != 1 || api.events[0].Type != "rerun_clicked" {
		t.Errorf("events = %+v", api.events)
	}
}

// TestRerunDoesNotMutateAncestor verifies the ancestor payload is cloned
// before the seed is varied.
func TestRerunDoesNotMutateAncestor(t *testing.T) {
	api := newFakeAPI()
	s := NewSubmitter(api, "telegram", nil)
	ancestor := ancestorRecord()

	if _, err := s.Rerun(context.Background(), imageTool(), ancestor, "m1"); err != nil {
		t.Fatalf("Rerun: %v", err)
	}
	if ancestor.RequestPayload["input_seed"] != float64(100) {
		t.Errorf("ancestor seed mutated: %v", ancestor.RequestPayload["input_seed"])
	}
}

// TestRerunChainCount verifies rerunCount accumulates along a chain.
func TestRerunChainCount(t *testing.T) {
	api := newFakeAPI()
	s := NewSubmitter(api, "telegram", nil)
	ancestor := ancestorRecord()
	ancestor.Metadata.RerunCount = 2

	if _, err := s.Rerun(context.Background(), imageTool(), ancestor, "m1"); err != nil {
		t.Fatalf("Rerun: %v", err)
	}
	if got := api.executed[0].Metadata.RerunCount; got != 3 {
		t.Errorf("rerunCount = %d, want 3", got)
	}
}

// TestTweak verifies draft submission: only changed params in tweakParams,
// lineage marked, and the event logged after success.
func TestTweak(t *testing.T) {
	api := newFakeAPI()
	s := NewSubmitter(api, "telegram", nil)

	draft := map[string]any{
		"input_prompt": "a cat",
		"input_seed":   float64(100),
		"input_steps":  int64(30),
	}
	genID, err := s.Tweak(context.Background(), imageTool(), ancestorRecord(), "m1", draft, 555, 100)
	if err != nil {
		t.Fatalf("Tweak: %v", err)
	}

	meta := api.executed[0].Metadata
	if !meta.IsTweaked || meta.TweakedFrom != "gen-1" {
		t.Errorf("lineage = %+v", meta)
	}
	if len(meta.TweakParams) != 1 || meta.TweakParams["input_steps"] != int64(30) {
		t.Errorf("tweakParams = %v", meta.TweakParams)
	}
	if meta.UserInputPrompt != "a cat" {
		t.Errorf("userInputPrompt = %q", meta.UserInputPrompt)
	}

	foundEvent := false
	for _, ev := range api.events {
		if ev.Type == "tweak_submitted" {
			foundEvent = true
			if ev.Payload["parentGenerationId"] != "gen-1" || ev.Payload["generationId"] != genID {
				t.Errorf("event payload = %v", ev.Payload)
			}
		}
	}
	if !foundEvent {
		t.Error("tweak_submitted event not logged")
	}
}

// TestSubmitMarksFailedOnExecuteError verifies that an execution failure
// flips the intent record to failed and surfaces the error.
func TestSubmitMarksFailedOnExecuteError(t *testing.T) {
	api := newFakeAPI()
	api.execErr = errors.New("executor unavailable")
	s := NewSubmitter(api, "telegram", nil)

	_, err := s.Rerun(context.Background(), imageTool(), ancestorRecord(), "m1")
	if err == nil {
		t.Fatal("expected error")
	}

	if len(api.created) != 1 {
		t.Fatalf("created %d records", len(api.created))
	}
	patches := api.patches["new-1"]
	if len(patches) != 1 || patches[0]["status"] != dataapi.StatusFailed {
		t.Errorf("patches = %v", patches)
	}
	if patches[0]["statusReason"] == "" {
		t.Error("statusReason empty")
	}
}

// TestTweakNotificationFallback verifies the menu coordinates anchor
// delivery when the ancestor has no notification context.
func TestTweakNotificationFallback(t *testing.T) {
	api := newFakeAPI()
	s := NewSubmitter(api, "telegram", nil)
	ancestor := ancestorRecord()
	ancestor.Metadata.Notification = nil

	draft := map[string]any{"input_prompt": "a cat"}
	if _, err := s.Tweak(context.Background(), imageTool(), ancestor, "m1", draft, 777, 42); err != nil {
		t.Fatalf("Tweak: %v", err)
	}

	notif := api.executed[0].Metadata.Notification
	if notif == nil || notif.ChatID != 777 || notif.ReplyToMessageID != 42 {
		t.Errorf("notification = %+v", notif)
	}
}

// TestDeploymentResolution verifies the deployment id chain including the
// gated comfy- workflow fallback.
func TestDeploymentResolution(t *testing.T) {
	api := newFakeAPI()

	legacyOn := NewSubmitter(api, "telegram", func() bool { return true })
	legacyOff := NewSubmitter(api, "telegram", func() bool { return false })

	tool := imageTool()
	tool.Metadata.DeploymentID = "dep-tool"

	ancestor := ancestorRecord()
	ancestor.Metadata.DeploymentID = "dep-ancestor"
	if got := legacyOn.deploymentID(tool, ancestor); got != "dep-ancestor" {
		t.Errorf("ancestor deployment = %q", got)
	}

	ancestor.Metadata.DeploymentID = ""
	if got := legacyOn.deploymentID(tool, ancestor); got != "dep-tool" {
		t.Errorf("tool deployment = %q", got)
	}

	tool.Metadata.DeploymentID = ""
	ancestor.Metadata.WorkflowID = "comfy-wf-123"
	if got := legacyOn.deploymentID(tool, ancestor); got != "wf-123" {
		t.Errorf("legacy deployment = %q", got)
	}
	if got := legacyOff.deploymentID(tool, ancestor); got != "" {
		t.Errorf("legacy fallback leaked with flag off: %q", got)
	}
}
