// Package derive builds and submits generations derived from existing
// ones: tweaks carrying an edited parameter draft, reruns cloning an
// ancestor with a varied seed, and fresh submissions from dynamic tool
// commands. Submission is a two-step handshake with the data service: an
// intent record is created first, then handed to the execution endpoint;
// an execution failure marks the intent failed so no orphan stays pending.
package derive

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
)

// API is the slice of the data service the submitter needs.
type API interface {
	CreateGeneration(ctx context.Context, gc *dataapi.GenerationCreate) (*dataapi.GenerationRecord, error)
	Execute(ctx context.Context, req *dataapi.ExecuteRequest) (*dataapi.ExecuteResult, error)
	UpdateGeneration(ctx context.Context, id string, patch map[string]any) error
	LogEvent(ctx context.Context, ev dataapi.Event) error
	ToolPreferences(ctx context.Context, masterAccountID, toolName string) (map[string]any, error)
}

// Submitter derives and submits generations.
type Submitter struct {
	api      API
	platform string
	legacy   func() bool
}

// NewSubmitter builds a submitter. legacy gates the comfy- workflow id
// fallback used for deployment resolution on old records.
func NewSubmitter(api API, platform string, legacy func() bool) *Submitter {
	if legacy == nil {
		legacy = func() bool { return false }
	}
	return &Submitter{api: api, platform: platform, legacy: legacy}
}

// Tweak submits a generation derived from ancestor with the session draft
// as its inputs. The menu coordinates anchor delivery when the ancestor
// carries no notification context.
func (s *Submitter) Tweak(ctx context.Context, tool *dataapi.ToolDefinition, ancestor *dataapi.GenerationRecord, masterAccountID string, draft map[string]any, menuChatID int64, menuReplyTo int) (string, error) {
	prompt, _ := draft[tool.PromptKey()].(string)

	notif := notificationOf(ancestor)
	if notif == nil && menuChatID != 0 {
		notif = &dataapi.NotificationContext{ChatID: menuChatID, ReplyToMessageID: menuReplyTo}
	}

	meta := dataapi.GenerationMeta{
		UserInputPrompt:   prompt,
		InitiatingEventID: initiatingEvent(ancestor),
		TweakParams:       diffParams(ancestor.RequestPayload, draft),
		IsTweaked:         true,
		TweakedFrom:       ancestor.ID,
		DeploymentID:      s.deploymentID(tool, ancestor),
		Notification:      notif,
	}

	genID, err := s.submit(ctx, tool, masterAccountID, draft, meta)
	if err != nil {
		return "", err
	}
	s.logEvent(ctx, masterAccountID, "tweak_submitted", map[string]any{
		"parentGenerationId": ancestor.ID,
		"generationId":       genID,
		"toolId":             tool.ToolID,
		"tweakParams":        meta.TweakParams,
	})
	return genID, nil
}

// Rerun submits a near-identical clone of ancestor: same inputs with the
// seed varied, the user's stored preferences filled in underneath, and
// lineage metadata pointing back at the ancestor.
func (s *Submitter) Rerun(ctx context.Context, tool *dataapi.ToolDefinition, ancestor *dataapi.GenerationRecord, masterAccountID string) (string, error) {
	s.logEvent(ctx, masterAccountID, "rerun_clicked", map[string]any{
		"generationId": ancestor.ID,
		"toolId":       tool.ToolID,
	})

	inputs := make(map[string]any, len(ancestor.RequestPayload))
	for k, v := range ancestor.RequestPayload {
		inputs[k] = v
	}
	MutateSeed(inputs)

	prefs, err := s.api.ToolPreferences(ctx, masterAccountID, tool.DisplayName)
	if err != nil && !dataapi.IsNotFound(err) {
		slog.Warn("preference load failed, rerunning without",
			"tool", tool.DisplayName,
			"error", err)
	}
	inputs = MergePreferences(prefs, inputs)

	meta := dataapi.GenerationMeta{
		UserInputPrompt:   ancestor.Metadata.UserInputPrompt,
		InitiatingEventID: initiatingEvent(ancestor),
		IsRerun:           true,
		RerunFrom:         ancestor.ID,
		RerunCount:        ancestor.Metadata.RerunCount + 1,
		DeploymentID:      s.deploymentID(tool, ancestor),
		Notification:      notificationOf(ancestor),
	}

	return s.submit(ctx, tool, masterAccountID, inputs, meta)
}

// Fresh submits a new generation from a dynamic tool command.
func (s *Submitter) Fresh(ctx context.Context, tool *dataapi.ToolDefinition, masterAccountID string, inputs map[string]any, pc *dataapi.PlatformContext, notif *dataapi.NotificationContext) (string, error) {
	prompt, _ := inputs[tool.PromptKey()].(string)
	meta := dataapi.GenerationMeta{
		UserInputPrompt:   prompt,
		InitiatingEventID: uuid.NewString(),
		DeploymentID:      s.deploymentID(tool, nil),
		PlatformContext:   pc,
		Notification:      notif,
	}
	return s.submit(ctx, tool, masterAccountID, inputs, meta)
}

// submit runs the create-intent and execute handshake. The intent record
// id travels to the executor inside the metadata so completion events can
// find it again.
func (s *Submitter) submit(ctx context.Context, tool *dataapi.ToolDefinition, masterAccountID string, inputs map[string]any, meta dataapi.GenerationMeta) (string, error) {
	inputs = FilterInputs(tool.InputSchema, inputs)
	if meta.InitiatingEventID == "" {
		meta.InitiatingEventID = uuid.NewString()
	}

	rec, err := s.api.CreateGeneration(ctx, &dataapi.GenerationCreate{
		ToolID:          tool.ToolID,
		ToolDisplayName: tool.DisplayName,
		MasterAccountID: masterAccountID,
		SourcePlatform:  s.platform,
		Status:          dataapi.StatusPending,
		RequestPayload:  inputs,
		Metadata:        meta,
	})
	if err != nil {
		return "", fmt.Errorf("create generation intent: %w", err)
	}

	meta.GenerationID = rec.ID
	_, err = s.api.Execute(ctx, &dataapi.ExecuteRequest{
		ToolID:   tool.ToolID,
		Inputs:   inputs,
		User:     dataapi.ExecuteUser{MasterAccountID: masterAccountID, Platform: s.platform},
		EventID:  meta.InitiatingEventID,
		Metadata: meta,
	})
	if err != nil {
		if markErr := s.api.UpdateGeneration(ctx, rec.ID, map[string]any{
			"status":       dataapi.StatusFailed,
			"statusReason": err.Error(),
		}); markErr != nil {
			slog.Warn("failed to mark generation failed",
				"generation_id", rec.ID,
				"error", markErr)
		}
		return "", fmt.Errorf("execute generation %s: %w", rec.ID, err)
	}

	slog.Info("generation submitted",
		"generation_id", rec.ID,
		"tool", tool.DisplayName,
		"master_account_id", masterAccountID)
	return rec.ID, nil
}

// deploymentID resolves the deployment for a submission: ancestor metadata
// first, then the tool definition, then the legacy comfy- workflow id
// fallback when enabled.
func (s *Submitter) deploymentID(tool *dataapi.ToolDefinition, ancestor *dataapi.GenerationRecord) string {
	if ancestor != nil && ancestor.Metadata.DeploymentID != "" {
		return ancestor.Metadata.DeploymentID
	}
	if tool.Metadata.DeploymentID != "" {
		return tool.Metadata.DeploymentID
	}
	if s.legacy() {
		if ancestor != nil {
			if id, ok := legacyDeployment(ancestor.Metadata.WorkflowID); ok {
				return id
			}
		}
		if id, ok := legacyDeployment(tool.Metadata.WorkflowID); ok {
			return id
		}
	}
	return ""
}

func legacyDeployment(workflowID string) (string, bool) {
	if strings.HasPrefix(workflowID, "comfy-") {
		return strings.TrimPrefix(workflowID, "comfy-"), true
	}
	return "", false
}

// initiatingEvent reuses the ancestor's initiating event id when present
// so a derivation chain stays attributable to its original trigger.
func initiatingEvent(ancestor *dataapi.GenerationRecord) string {
	if ancestor != nil && ancestor.Metadata.InitiatingEventID != "" {
		return ancestor.Metadata.InitiatingEventID
	}
	return uuid.NewString()
}

func notificationOf(ancestor *dataapi.GenerationRecord) *dataapi.NotificationContext {
	if ancestor == nil {
		return nil
	}
	meta := ancestor.Metadata
	if meta.Notification != nil && meta.Notification.ChatID != 0 {
		cp := *meta.Notification
		return &cp
	}
	if meta.TelegramChatID != 0 {
		return &dataapi.NotificationContext{
			ChatID:           meta.TelegramChatID,
			ReplyToMessageID: meta.TelegramMessageID,
		}
	}
	return nil
}

// diffParams returns the draft entries that differ from the ancestor
// payload. This is what lands in metadata.tweakParams.
func diffParams(base, draft map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range draft {
		if old, ok := base[k]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *Submitter) logEvent(ctx context.Context, masterAccountID, typ string, payload map[string]any) {
	err := s.api.LogEvent(ctx, dataapi.Event{
		Type:            typ,
		MasterAccountID: masterAccountID,
		SourcePlatform:  s.platform,
		Payload:         payload,
	})
	if err != nil {
		slog.Warn("event log failed", "type", typ, "error", err)
	}
}
