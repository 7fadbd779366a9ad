package features

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/config"
	"github.com/nextlevelbuilder/musebot/internal/dataapi"
	"github.com/nextlevelbuilder/musebot/internal/delivery"
	"github.com/nextlevelbuilder/musebot/internal/derive"
	"github.com/nextlevelbuilder/musebot/internal/dispatch"
	"github.com/nextlevelbuilder/musebot/internal/state"
	"github.com/nextlevelbuilder/musebot/internal/telegram/telegramtest"
	"github.com/nextlevelbuilder/musebot/internal/tools"
)

// fakeAPI implements every data service slice the bot consumes: the
// handler API, the submitter and deliverer APIs, and the tool registry
// source.
type fakeAPI struct {
	generations map[string]*dataapi.GenerationRecord
	toolDefs    []dataapi.ToolDefinition
	prefs       map[string]any

	created  []*dataapi.GenerationCreate
	executed []*dataapi.ExecuteRequest
	patches  map[string][]map[string]any
	events   []dataapi.Event
	ratings  []string

	genErr  error
	rateErr error
	execErr error
	nextID  int
}

var (
	_ API          = (*fakeAPI)(nil)
	_ derive.API   = (*fakeAPI)(nil)
	_ tools.Source = (*fakeAPI)(nil)
)

func notFoundErr() error { return &dataapi.APIError{Status: http.StatusNotFound} }

func (f *fakeAPI) Generation(ctx context.Context, id string) (*dataapi.GenerationRecord, error) {
	if f.genErr != nil {
		return nil, f.genErr
	}
	rec, ok := f.generations[id]
	if !ok {
		return nil, notFoundErr()
	}
	return rec, nil
}

func (f *fakeAPI) RateGeneration(ctx context.Context, id, kind, masterAccountID string) error {
	if f.rateErr != nil {
		return f.rateErr
	}
	f.ratings = append(f.ratings, id+"/"+kind+"/"+masterAccountID)
	return nil
}

func (f *fakeAPI) MostFrequentTools(ctx context.Context, masterAccountID string, limit int) ([]dataapi.ToolUsage, error) {
	return nil, nil
}

func (f *fakeAPI) LogEvent(ctx context.Context, ev dataapi.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeAPI) StatusReport(ctx context.Context, masterAccountID string) (*dataapi.StatusReport, error) {
	return &dataapi.StatusReport{Points: 42, Exp: 7}, nil
}

func (f *fakeAPI) Wallets(ctx context.Context, masterAccountID string) ([]dataapi.Wallet, error) {
	return nil, nil
}

func (f *fakeAPI) ToolPreferences(ctx context.Context, masterAccountID, toolName string) (map[string]any, error) {
	return f.prefs, nil
}

func (f *fakeAPI) SetToolPreference(ctx context.Context, masterAccountID, toolName, param string, value any) error {
	return nil
}

func (f *fakeAPI) LoraFavorites(ctx context.Context, masterAccountID string) ([]string, error) {
	return nil, nil
}

func (f *fakeAPI) AddLoraFavorite(ctx context.Context, masterAccountID, loraID string) error {
	return nil
}

func (f *fakeAPI) RemoveLoraFavorite(ctx context.Context, masterAccountID, loraID string) error {
	return nil
}

func (f *fakeAPI) Loras(ctx context.Context, p dataapi.LoraListParams) (*dataapi.LoraPage, error) {
	return &dataapi.LoraPage{Page: 1, TotalPages: 1}, nil
}

func (f *fakeAPI) Lora(ctx context.Context, idOrSlug string) (*dataapi.Lora, error) {
	return nil, notFoundErr()
}

func (f *fakeAPI) RequestMagicAmount(ctx context.Context, masterAccountID, address, chainID string) (*dataapi.MagicAmountLink, error) {
	return &dataapi.MagicAmountLink{RequestID: "req-1", MagicAmountWei: "1000000000001234", ChainID: chainID}, nil
}

func (f *fakeAPI) RequestPlatformLink(ctx context.Context, req dataapi.PlatformLinkRequest) (*dataapi.PlatformLinkResult, error) {
	return &dataapi.PlatformLinkResult{
		Mode:  dataapi.LinkModeMagicAmount,
		Magic: &dataapi.MagicAmountLink{RequestID: "req-1", MagicAmountWei: "1000000000001234"},
	}, nil
}

func (f *fakeAPI) ResolveLinkRequest(ctx context.Context, requestID, action string) (*dataapi.LinkResolution, error) {
	return &dataapi.LinkResolution{Status: action}, nil
}

func (f *fakeAPI) Collections(ctx context.Context, masterAccountID string) ([]dataapi.Collection, error) {
	return nil, nil
}

func (f *fakeAPI) CreateCollection(ctx context.Context, masterAccountID, name string) (*dataapi.Collection, error) {
	return &dataapi.Collection{ID: "col-1", Name: name, MasterAccountID: masterAccountID}, nil
}

func (f *fakeAPI) RenameCollection(ctx context.Context, id, name string) error { return nil }

func (f *fakeAPI) DeleteCollection(ctx context.Context, id string) error { return nil }

func (f *fakeAPI) Trainings(ctx context.Context, masterAccountID string) ([]dataapi.Training, error) {
	return nil, nil
}

func (f *fakeAPI) Training(ctx context.Context, id string) (*dataapi.Training, error) {
	return nil, notFoundErr()
}

func (f *fakeAPI) CreateTraining(ctx context.Context, masterAccountID, name, baseModel string) (*dataapi.Training, error) {
	return &dataapi.Training{
		ID:              "tr-1",
		Name:            name,
		BaseModel:       baseModel,
		Status:          dataapi.TrainingPending,
		MasterAccountID: masterAccountID,
	}, nil
}

func (f *fakeAPI) CreateGeneration(ctx context.Context, gc *dataapi.GenerationCreate) (*dataapi.GenerationRecord, error) {
	f.created = append(f.created, gc)
	f.nextID++
	return &dataapi.GenerationRecord{
		ID:              fmt.Sprintf("new-%d", f.nextID),
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
	if f.patches == nil {
		f.patches = map[string][]map[string]any{}
	}
	f.patches[id] = append(f.patches[id], patch)
	return nil
}

func (f *fakeAPI) ToolRegistry(ctx context.Context) ([]dataapi.ToolDefinition, error) {
	return f.toolDefs, nil
}

type fakeIdentity struct {
	maid string
}

func (f *fakeIdentity) Resolve(ctx context.Context, user *telego.User, chatID int64, messageID int) (string, error) {
	return f.maid, nil
}

// testBot is a fully wired bot over the recorder transport and fake data
// service, seeded with one tool and one completed generation.
type testBot struct {
	api *fakeAPI
	rec *telegramtest.Recorder
	d   *dispatch.Dispatcher
	h   *Handlers
	st  *state.Stores
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	api := &fakeAPI{
		generations: map[string]*dataapi.GenerationRecord{"gen-1": ancestorRecord()},
		toolDefs:    []dataapi.ToolDefinition{imageTool()},
	}
	rec := telegramtest.New()
	st := state.New(time.Minute, time.Minute)
	reg := tools.NewRegistry(api, time.Minute)
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("tool refresh: %v", err)
	}
	d := dispatch.New(rec, &fakeIdentity{maid: "m1"}, st.Replies)
	h := Register(d, Deps{
		Cfg:     config.Default(),
		API:     api,
		TG:      rec,
		Tools:   reg,
		State:   st,
		Submit:  derive.NewSubmitter(api, "telegram", nil),
		Deliver: delivery.NewDeliverer(api, rec),
	})
	return &testBot{api: api, rec: rec, d: d, h: h, st: st}
}

func imageTool() dataapi.ToolDefinition {
	return dataapi.ToolDefinition{
		ToolID:      "tool-img",
		DisplayName: "Quick Image",
		CommandName: "image",
		Description: "Make an image",
		InputSchema: map[string]dataapi.ParamSpec{
			"input_prompt": {Name: "input_prompt", Type: "string"},
			"input_seed":   {Name: "input_seed", Type: "number"},
			"input_steps":  {Name: "input_steps", Type: "integer"},
			"input_cfg":    {Name: "input_cfg", Type: "number", Advanced: true},
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
			"input_seed":   100.0,
			"input_steps":  20.0,
		},
		Metadata: dataapi.GenerationMeta{
			UserInputPrompt:   "a cat",
			InitiatingEventID: "ev-origin",
			Notification:      &dataapi.NotificationContext{ChatID: 555, ReplyToMessageID: 90},
		},
	}
}

// menuPress simulates the commander pressing a button on one of the
// bot's messages. The message replies to the commander's original
// command, which is what authorizes the press.
func menuPress(data, text string, kb *telego.InlineKeyboardMarkup) telego.Update {
	commander := &telego.User{ID: 7, FirstName: "Alice", Username: "alice"}
	card := &telego.Message{
		MessageID:      100,
		Text:           text,
		Chat:           telego.Chat{ID: 1, Type: telego.ChatTypePrivate},
		From:           &telego.User{ID: 42, IsBot: true, Username: "musebot_test_bot"},
		ReplyToMessage: &telego.Message{MessageID: 90, Chat: telego.Chat{ID: 1}, From: commander},
		ReplyMarkup:    kb,
	}
	return telego.Update{CallbackQuery: &telego.CallbackQuery{
		ID:      "q1",
		From:    *commander,
		Message: card,
		Data:    data,
	}}
}

// cardPress is a press on a media delivery card (no text body).
func cardPress(data string, kb *telego.InlineKeyboardMarkup) telego.Update {
	return menuPress(data, "", kb)
}

func userMessage(chatID int64, messageID int, text string) *telego.Message {
	return &telego.Message{
		MessageID: messageID,
		Text:      text,
		Chat:      telego.Chat{ID: chatID, Type: telego.ChatTypePrivate},
		From:      &telego.User{ID: 7, FirstName: "Alice", Username: "alice"},
	}
}

// replyTo builds the user's reply to a prompt message.
func replyTo(promptID, messageID int, text string) telego.Update {
	msg := userMessage(1, messageID, text)
	msg.ReplyToMessage = &telego.Message{MessageID: promptID, Chat: telego.Chat{ID: 1}}
	return telego.Update{Message: msg}
}

// tweakToken digs the session token out of a rendered tweak keyboard.
func tweakToken(t *testing.T, kb *telego.InlineKeyboardMarkup) string {
	t.Helper()
	if kb == nil {
		t.Fatal("no keyboard")
	}
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			if strings.HasPrefix(btn.CallbackData, "tpe_") {
				rest := strings.TrimPrefix(btn.CallbackData, "tpe_")
				if i := strings.Index(rest, "_"); i > 0 {
					return rest[:i]
				}
			}
		}
	}
	t.Fatal("no parameter button in keyboard")
	return ""
}

// findButton returns the first button whose callback data starts with
// prefix, or nil.
func findButton(kb *telego.InlineKeyboardMarkup, prefix string) *telego.InlineKeyboardButton {
	if kb == nil {
		return nil
	}
	for _, row := range kb.InlineKeyboard {
		for i := range row {
			if strings.HasPrefix(row[i].CallbackData, prefix) {
				return &row[i]
			}
		}
	}
	return nil
}
