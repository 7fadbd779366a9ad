// Package features implements the interaction handlers: commands, button
// presses, and prompted replies. One Handlers instance serves every update;
// all mutable state lives in the shared stores.
package features

import (
	"context"
	"log/slog"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/config"
	"github.com/nextlevelbuilder/musebot/internal/dataapi"
	"github.com/nextlevelbuilder/musebot/internal/delivery"
	"github.com/nextlevelbuilder/musebot/internal/derive"
	"github.com/nextlevelbuilder/musebot/internal/dispatch"
	"github.com/nextlevelbuilder/musebot/internal/markup"
	"github.com/nextlevelbuilder/musebot/internal/state"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
	"github.com/nextlevelbuilder/musebot/internal/tools"
)

// API is the slice of the data service the feature handlers consume.
type API interface {
	Generation(ctx context.Context, id string) (*dataapi.GenerationRecord, error)
	RateGeneration(ctx context.Context, id, kind, masterAccountID string) error
	MostFrequentTools(ctx context.Context, masterAccountID string, limit int) ([]dataapi.ToolUsage, error)
	LogEvent(ctx context.Context, ev dataapi.Event) error

	StatusReport(ctx context.Context, masterAccountID string) (*dataapi.StatusReport, error)
	Wallets(ctx context.Context, masterAccountID string) ([]dataapi.Wallet, error)
	ToolPreferences(ctx context.Context, masterAccountID, toolName string) (map[string]any, error)
	SetToolPreference(ctx context.Context, masterAccountID, toolName, param string, value any) error

	LoraFavorites(ctx context.Context, masterAccountID string) ([]string, error)
	AddLoraFavorite(ctx context.Context, masterAccountID, loraID string) error
	RemoveLoraFavorite(ctx context.Context, masterAccountID, loraID string) error
	Loras(ctx context.Context, p dataapi.LoraListParams) (*dataapi.LoraPage, error)
	Lora(ctx context.Context, idOrSlug string) (*dataapi.Lora, error)

	RequestMagicAmount(ctx context.Context, masterAccountID, address, chainID string) (*dataapi.MagicAmountLink, error)
	RequestPlatformLink(ctx context.Context, req dataapi.PlatformLinkRequest) (*dataapi.PlatformLinkResult, error)
	ResolveLinkRequest(ctx context.Context, requestID, action string) (*dataapi.LinkResolution, error)

	Collections(ctx context.Context, masterAccountID string) ([]dataapi.Collection, error)
	CreateCollection(ctx context.Context, masterAccountID, name string) (*dataapi.Collection, error)
	RenameCollection(ctx context.Context, id, name string) error
	DeleteCollection(ctx context.Context, id string) error

	Trainings(ctx context.Context, masterAccountID string) ([]dataapi.Training, error)
	Training(ctx context.Context, id string) (*dataapi.Training, error)
	CreateTraining(ctx context.Context, masterAccountID, name, baseModel string) (*dataapi.Training, error)
}

// Deps carries the collaborators the handlers close over.
type Deps struct {
	Cfg     *config.Config
	API     API
	TG      telegram.API
	Tools   *tools.Registry
	State   *state.Stores
	Submit  *derive.Submitter
	Deliver *delivery.Deliverer
}

// Handlers hosts every interaction handler. Methods are spread across the
// files of this package by feature.
type Handlers struct {
	cfg     *config.Config
	api     API
	tg      telegram.API
	tools   *tools.Registry
	state   *state.Stores
	submit  *derive.Submitter
	deliver *delivery.Deliverer
}

// Register wires every command, callback prefix, reply kind, and the
// dynamic tool fallback into the dispatcher.
func Register(d *dispatch.Dispatcher, deps Deps) *Handlers {
	h := &Handlers{
		cfg:     deps.Cfg,
		api:     deps.API,
		tg:      deps.TG,
		tools:   deps.Tools,
		state:   deps.State,
		submit:  deps.Submit,
		deliver: deps.Deliver,
	}

	d.HandleCommand(`^/(?:start|menu)\b`, h.handleStart)
	d.HandleCommand(`^/status\b`, h.handleStatus)
	d.HandleCommand(`^/help\b`, h.handleHelp)
	d.HandleCommand(`^/settings\b`, h.handleSettings)
	d.HandleCommand(`^/wallet\b`, h.handleWallet)
	d.HandleCommand(`^/link(?:\s+(\S+))?\s*$`, h.handleLink)
	d.HandleCommand(`^/loras?\b`, h.handleLoras)
	d.HandleCommand(`^/collections\b`, h.handleCollections)
	d.HandleCommand(`^/train\b`, h.handleTrain)

	d.HandleCallbackPrefix("tweak_gen:", h.openTweak)
	d.HandleCallbackPrefix("tweak_gen_menu_render:", h.renderTweakMenu)
	d.HandleCallbackPrefix("tpe_", h.tweakParamPrompt)
	d.HandleCallbackPrefix("tweak_apply:", h.applyTweak)
	d.HandleCallbackPrefix("tweak_cancel:", h.cancelTweak)
	d.HandleCallbackPrefix("rerun_gen:", h.rerun)
	d.HandleCallbackPrefix("rate_gen:", h.rate)
	d.HandleCallbackPrefix("hide_menu", h.hideMenu)
	d.HandleCallbackPrefix("view_gen_info:", h.genInfo)
	d.HandleCallbackPrefix("view_spell_step:", h.spellStep)
	d.HandleCallbackPrefix("restore_delivery:", h.restoreDelivery)
	d.HandleCallbackPrefix("set_", h.settingsCallback)
	d.HandleCallbackPrefix("menu:", h.menuCallback)
	d.HandleCallbackPrefix("lora:", h.loraCallback)
	d.HandleCallbackPrefix("wallet:", h.walletCallback)
	d.HandleCallbackPrefix("link:", h.linkCallback)
	d.HandleCallbackPrefix("collection:", h.collectionCallback)
	d.HandleCallbackPrefix("train:", h.trainCallback)

	d.HandleReply(state.KindTweakParamEdit, h.tweakParamReply)
	d.HandleReply(state.KindSettingsParamEdit, h.settingsParamReply)
	d.HandleReply(state.KindLoraImportURL, h.loraImportReply)
	d.HandleReply(state.KindCollectionName, h.collectionNameReply)
	d.HandleReply(state.KindCollectionRename, h.collectionRenameReply)
	d.HandleReply(state.KindTrainingName, h.trainingNameReply)

	d.SetDynamic(h.dynamicCommand)
	return h
}

// User-visible strings shared across handlers.
const (
	genErrText        = "Something went wrong. Please try again."
	genMissingText    = "Original generation not found."
	toolGoneText      = "This tool is no longer available."
	tweakExpiredText  = "Your tweak session has expired"
	tweakExpiredToast = "Your tweak session has expired. Press ✎ on the result to start again."
)

// paint writes a menu screen onto an existing message, or sends a fresh one
// when messageID is zero or the old message refuses edits.
func (h *Handlers) paint(ctx context.Context, chatID int64, messageID int, text markup.Safe, kb *telego.InlineKeyboardMarkup) error {
	if messageID != 0 {
		err := h.tg.EditMessageText(ctx, chatID, messageID, text, kb)
		if err == nil || telegram.IsNotModified(err) {
			return nil
		}
		if !telegram.IsNotEditable(err) {
			return err
		}
	}
	_, err := h.tg.SendMessage(ctx, telegram.SendParams{ChatID: chatID, Text: text, Keyboard: kb})
	return err
}

// paintOver repaints the pressed message with a new screen. Media messages
// cannot become text, so those are replaced by a fresh message.
func (h *Handlers) paintOver(ctx context.Context, p *dispatch.Press, text markup.Safe, kb *telego.InlineKeyboardMarkup) error {
	if p.Message != nil && p.Message.Text == "" {
		if err := h.tg.DeleteMessage(ctx, p.ChatID(), p.MessageID()); err != nil {
			slog.Warn("media menu delete failed", "error", err)
		}
		_, err := h.tg.SendMessage(ctx, telegram.SendParams{ChatID: p.ChatID(), Text: text, Keyboard: kb})
		return err
	}
	return h.paint(ctx, p.ChatID(), p.MessageID(), text, kb)
}

// dropScaffolding deletes a prompt message and the user's reply to it once
// both have served their purpose. Failures only log; stale scaffolding is
// cosmetic.
func (h *Handlers) dropScaffolding(ctx context.Context, msg *telego.Message) {
	if msg.ReplyToMessage != nil {
		if err := h.tg.DeleteMessage(ctx, msg.Chat.ID, msg.ReplyToMessage.MessageID); err != nil {
			slog.Warn("prompt delete failed", "error", err)
		}
	}
	if err := h.tg.DeleteMessage(ctx, msg.Chat.ID, msg.MessageID); err != nil {
		slog.Warn("reply delete failed", "error", err)
	}
}
