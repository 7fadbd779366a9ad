package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
)

type fakeSource struct {
	defs  []dataapi.ToolDefinition
	err   error
	calls int
}

func (f *fakeSource) ToolRegistry(ctx context.Context) ([]dataapi.ToolDefinition, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.defs, nil
}

func testDefs() []dataapi.ToolDefinition {
	return []dataapi.ToolDefinition{
		{
			ToolID:      "tool-img",
			DisplayName: "Quick Image",
			CommandName: "make",
			InputSchema: map[string]dataapi.ParamSpec{
				"input_prompt": {Name: "input_prompt", Type: "string"},
				"input_seed":   {Name: "input_seed", Type: "number", Default: float64(42)},
			},
		},
		{
			ToolID:      "tool-vid",
			DisplayName: "Video Maker",
			CommandName: "vid",
			InputSchema: map[string]dataapi.ParamSpec{
				"input_prompt": {Name: "input_prompt", Type: "string"},
			},
		},
		{
			ToolID:      "tool-hidden",
			DisplayName: "Internal Thing",
			Metadata:    dataapi.ToolMeta{Hidden: true},
		},
	}
}

// TestRegistryLookups verifies the id, display name, command, and callback
// key indexes after a refresh.
func TestRegistryLookups(t *testing.T) {
	r := NewRegistry(&fakeSource{defs: testDefs()}, time.Minute)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if d := r.ByID("tool-img"); d == nil || d.DisplayName != "Quick Image" {
		t.Errorf("ByID = %+v", d)
	}
	if d := r.ByDisplayName("quick image"); d == nil || d.ToolID != "tool-img" {
		t.Errorf("ByDisplayName case-insensitive = %+v", d)
	}
	if d := r.ByCommand("VID"); d == nil || d.ToolID != "tool-vid" {
		t.Errorf("ByCommand = %+v", d)
	}
	if d := r.ByCallbackKey("Quick_Image"); d == nil || d.ToolID != "tool-img" {
		t.Errorf("ByCallbackKey = %+v", d)
	}
	if d := r.ByID("tool-nope"); d != nil {
		t.Errorf("unknown id resolved: %+v", d)
	}
}

// TestRegistryAllHidesAndSorts verifies that hidden tools are excluded and
// the listing is name-sorted.
func TestRegistryAllHidesAndSorts(t *testing.T) {
	r := NewRegistry(&fakeSource{defs: testDefs()}, time.Minute)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("All returned %d tools, want 2", len(all))
	}
	if all[0].DisplayName != "Quick Image" || all[1].DisplayName != "Video Maker" {
		t.Errorf("order = [%s, %s]", all[0].DisplayName, all[1].DisplayName)
	}
}

// TestRegistryKeepsSnapshotOnFailure verifies that a failed refresh leaves
// the previous catalog in place.
func TestRegistryKeepsSnapshotOnFailure(t *testing.T) {
	src := &fakeSource{defs: testDefs()}
	r := NewRegistry(src, time.Minute)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	src.err = errors.New("service down")
	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if d := r.ByID("tool-img"); d == nil {
		t.Error("snapshot lost after failed refresh")
	}
}

// TestSplitCallbackKey verifies tool key resolution when both the key and
// the trailing parameter contain underscores.
func TestSplitCallbackKey(t *testing.T) {
	r := NewRegistry(&fakeSource{defs: testDefs()}, time.Minute)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	tests := []struct {
		rest     string
		wantTool string
		wantTail string
	}{
		{"Quick_Image", "tool-img", ""},
		{"Quick_Image_input_seed", "tool-img", "input_seed"},
		{"Video_Maker_input_prompt", "tool-vid", "input_prompt"},
		{"Unknown_Tool_x", "", ""},
	}
	for _, tt := range tests {
		d, tail := r.SplitCallbackKey(tt.rest)
		gotTool := ""
		if d != nil {
			gotTool = d.ToolID
		}
		if gotTool != tt.wantTool || tail != tt.wantTail {
			t.Errorf("SplitCallbackKey(%q) = (%s, %q), want (%s, %q)",
				tt.rest, gotTool, tail, tt.wantTool, tt.wantTail)
		}
	}
}

// TestForRecord verifies ancestor tool resolution order: display name
// first, then tool id.
func TestForRecord(t *testing.T) {
	r := NewRegistry(&fakeSource{defs: testDefs()}, time.Minute)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if d := r.ForRecord("Quick Image", "tool-vid"); d == nil || d.ToolID != "tool-img" {
		t.Errorf("display name should win: %+v", d)
	}
	if d := r.ForRecord("Retired Tool", "tool-vid"); d == nil || d.ToolID != "tool-vid" {
		t.Errorf("id fallback = %+v", d)
	}
	if d := r.ForRecord("", "tool-img"); d == nil || d.ToolID != "tool-img" {
		t.Errorf("empty display name = %+v", d)
	}
}
