package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
	"github.com/nextlevelbuilder/musebot/internal/dispatch"
	"github.com/nextlevelbuilder/musebot/internal/markup"
	"github.com/nextlevelbuilder/musebot/internal/state"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
)

const (
	collectionPageSize = 6
	maxCollectionName  = 64
)

// handleCollections serves /collections with the first page of the list.
func (h *Handlers) handleCollections(ctx context.Context, msg *telego.Message, masterAccountID string, _ []string) error {
	return h.renderCollections(ctx, masterAccountID, msg.Chat.ID, 0, 0)
}

// collectionCallback routes collection:* presses.
func (h *Handlers) collectionCallback(ctx context.Context, p *dispatch.Press) error {
	rest := strings.TrimPrefix(p.Data(), "collection:")
	switch {
	case strings.HasPrefix(rest, "list:"):
		page, err := strconv.Atoi(strings.TrimPrefix(rest, "list:"))
		if err != nil {
			slog.Warn("malformed collection page", "data", p.Data())
			return nil
		}
		return h.renderCollections(ctx, p.MasterAccountID, p.ChatID(), p.MessageID(), page)
	case rest == "new":
		return h.collectionNamePrompt(ctx, p)
	case strings.HasPrefix(rest, "view:"):
		return h.renderCollectionDetail(ctx, p, strings.TrimPrefix(rest, "view:"))
	case strings.HasPrefix(rest, "rename:"):
		return h.collectionRenamePrompt(ctx, p, strings.TrimPrefix(rest, "rename:"))
	case strings.HasPrefix(rest, "delete:"):
		return h.confirmCollectionDelete(ctx, p, strings.TrimPrefix(rest, "delete:"))
	case strings.HasPrefix(rest, "confirmdel:"):
		return h.deleteCollection(ctx, p, strings.TrimPrefix(rest, "confirmdel:"))
	default:
		slog.Warn("unrouted collection action", "data", p.Data())
		return nil
	}
}

// renderCollections paints one page of the account's collections.
func (h *Handlers) renderCollections(ctx context.Context, masterAccountID string, chatID int64, messageID int, page int) error {
	colls, err := h.api.Collections(ctx, masterAccountID)
	if err != nil {
		slog.Error("collection list failed", "error", err)
		return h.paint(ctx, chatID, messageID, markup.Escape(genErrText), nil)
	}

	pages := (len(colls) + collectionPageSize - 1) / collectionPageSize
	if pages == 0 {
		pages = 1
	}
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}
	start := page * collectionPageSize
	end := start + collectionPageSize
	if end > len(colls) {
		end = len(colls)
	}

	kb := telegram.NewKeyboard()
	for _, coll := range colls[start:end] {
		label := fmt.Sprintf("%s (%d)", coll.Name, coll.ItemCount)
		kb.Row(telegram.Button(label, "collection:view:"+coll.ID))
	}
	if pages > 1 {
		var nav []telego.InlineKeyboardButton
		if page > 0 {
			nav = append(nav, telegram.Button("⬅️", "collection:list:"+strconv.Itoa(page-1)))
		}
		nav = append(nav, telegram.Button(fmt.Sprintf("%d of %d", page+1, pages), "collection:list:"+strconv.Itoa(page)))
		if page < pages-1 {
			nav = append(nav, telegram.Button("➡️", "collection:list:"+strconv.Itoa(page+1)))
		}
		kb.Row(nav...)
	}
	kb.Row(telegram.Button("➕ New collection", "collection:new"))
	kb.Row(telegram.Button("⬅️ Back", "menu:main"))

	parts := []markup.Safe{markup.Bold("🗂 Collections"), markup.Raw("\n")}
	if len(colls) == 0 {
		parts = append(parts, markup.Escape("No collections yet."))
	} else {
		parts = append(parts, markup.Escapef("%d collections.", len(colls)))
	}
	return h.paint(ctx, chatID, messageID, markup.Join(parts...), kb.Markup())
}

// renderCollectionDetail paints one collection with its manage actions.
func (h *Handlers) renderCollectionDetail(ctx context.Context, p *dispatch.Press, id string) error {
	coll, err := h.findCollection(ctx, p.MasterAccountID, id)
	if err != nil {
		slog.Error("collection lookup failed", "collection_id", id, "error", err)
		p.Alert(ctx, genErrText)
		return nil
	}
	if coll == nil {
		p.Alert(ctx, "This collection no longer exists.")
		return nil
	}

	parts := []markup.Safe{
		markup.Bold("🗂 " + coll.Name), markup.Raw("\n"),
		markup.Escapef("%d items", coll.ItemCount), markup.Raw("\n"),
	}
	if !coll.CreatedAt.IsZero() {
		parts = append(parts, markup.Escapef("Created: %s", coll.CreatedAt.UTC().Format("2006-01-02")), markup.Raw("\n"))
	}

	kb := telegram.NewKeyboard().
		Row(
			telegram.Button("✏️ Rename", "collection:rename:"+coll.ID),
			telegram.Button("🗑 Delete", "collection:delete:"+coll.ID),
		).
		Row(telegram.Button("⬅️ Back", "collection:list:0")).
		Markup()
	return h.paint(ctx, p.ChatID(), p.MessageID(), markup.Join(parts...), kb)
}

// collectionNamePrompt asks for the new collection's name.
func (h *Handlers) collectionNamePrompt(ctx context.Context, p *dispatch.Press) error {
	prompt, err := h.tg.SendMessage(ctx, telegram.SendParams{
		ChatID: p.ChatID(),
		Text:   markup.Escape("Reply to this message with a name for the new collection."),
	})
	if err != nil {
		return fmt.Errorf("send name prompt: %w", err)
	}
	h.state.Replies.Put(
		state.MessageRef{ChatID: prompt.Chat.ID, MessageID: prompt.MessageID},
		state.CollectionName{
			MasterAccountID: p.MasterAccountID,
			MenuChatID:      p.ChatID(),
			MenuMessageID:   p.MessageID(),
		},
	)
	return nil
}

// collectionRenamePrompt asks for a collection's new name.
func (h *Handlers) collectionRenamePrompt(ctx context.Context, p *dispatch.Press, id string) error {
	coll, err := h.findCollection(ctx, p.MasterAccountID, id)
	if err != nil {
		slog.Error("collection lookup failed", "collection_id", id, "error", err)
		p.Alert(ctx, genErrText)
		return nil
	}
	if coll == nil {
		p.Alert(ctx, "This collection no longer exists.")
		return nil
	}
	prompt, err := h.tg.SendMessage(ctx, telegram.SendParams{
		ChatID: p.ChatID(),
		Text:   markup.Escapef("Reply to this message with a new name for %q.", coll.Name),
	})
	if err != nil {
		return fmt.Errorf("send rename prompt: %w", err)
	}
	h.state.Replies.Put(
		state.MessageRef{ChatID: prompt.Chat.ID, MessageID: prompt.MessageID},
		state.CollectionRename{
			MasterAccountID: p.MasterAccountID,
			CollectionID:    coll.ID,
			MenuChatID:      p.ChatID(),
			MenuMessageID:   p.MessageID(),
		},
	)
	return nil
}

// collectionNameReply creates the collection and repaints the list.
func (h *Handlers) collectionNameReply(ctx context.Context, msg *telego.Message, masterAccountID string, rc state.ReplyContext) error {
	req, ok := rc.(state.CollectionName)
	if !ok || msg.ReplyToMessage == nil {
		return nil
	}
	promptRef := state.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ReplyToMessage.MessageID}
	if req.MasterAccountID != masterAccountID {
		h.state.Replies.Put(promptRef, rc)
		return nil
	}

	name, err := validateName(msg.Text)
	if err != nil {
		h.state.Replies.Put(promptRef, rc)
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID, markup.Escape(err.Error()))
	}

	if _, err := h.api.CreateCollection(ctx, masterAccountID, name); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	h.dropScaffolding(ctx, msg)
	return h.renderCollections(ctx, masterAccountID, req.MenuChatID, req.MenuMessageID, 0)
}

// collectionRenameReply renames the collection and repaints its detail.
func (h *Handlers) collectionRenameReply(ctx context.Context, msg *telego.Message, masterAccountID string, rc state.ReplyContext) error {
	req, ok := rc.(state.CollectionRename)
	if !ok || msg.ReplyToMessage == nil {
		return nil
	}
	promptRef := state.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ReplyToMessage.MessageID}
	if req.MasterAccountID != masterAccountID {
		h.state.Replies.Put(promptRef, rc)
		return nil
	}

	name, err := validateName(msg.Text)
	if err != nil {
		h.state.Replies.Put(promptRef, rc)
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID, markup.Escape(err.Error()))
	}

	coll, err := h.findCollection(ctx, masterAccountID, req.CollectionID)
	if err != nil {
		return fmt.Errorf("collection lookup: %w", err)
	}
	if coll == nil {
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID, markup.Escape("This collection no longer exists."))
	}

	if err := h.api.RenameCollection(ctx, coll.ID, name); err != nil {
		return fmt.Errorf("rename collection: %w", err)
	}
	h.dropScaffolding(ctx, msg)
	return h.renderCollections(ctx, masterAccountID, req.MenuChatID, req.MenuMessageID, 0)
}

// confirmCollectionDelete paints the are-you-sure screen.
func (h *Handlers) confirmCollectionDelete(ctx context.Context, p *dispatch.Press, id string) error {
	coll, err := h.findCollection(ctx, p.MasterAccountID, id)
	if err != nil {
		slog.Error("collection lookup failed", "collection_id", id, "error", err)
		p.Alert(ctx, genErrText)
		return nil
	}
	if coll == nil {
		p.Alert(ctx, "This collection no longer exists.")
		return nil
	}

	text := markup.Join(
		markup.Escapef("Delete %q and its %d items?", coll.Name, coll.ItemCount), markup.Raw("\n"),
		markup.Escape("This cannot be undone."),
	)
	kb := telegram.NewKeyboard().
		Row(
			telegram.Button("🗑 Delete", "collection:confirmdel:"+coll.ID),
			telegram.Button("Cancel", "collection:view:"+coll.ID),
		).
		Markup()
	return h.paint(ctx, p.ChatID(), p.MessageID(), text, kb)
}

// deleteCollection removes the collection after confirmation.
func (h *Handlers) deleteCollection(ctx context.Context, p *dispatch.Press, id string) error {
	coll, err := h.findCollection(ctx, p.MasterAccountID, id)
	if err != nil {
		slog.Error("collection lookup failed", "collection_id", id, "error", err)
		p.Alert(ctx, genErrText)
		return nil
	}
	if coll == nil {
		p.Alert(ctx, "This collection no longer exists.")
		return nil
	}
	if err := h.api.DeleteCollection(ctx, coll.ID); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	p.Toast(ctx, "🗑 Deleted")
	return h.renderCollections(ctx, p.MasterAccountID, p.ChatID(), p.MessageID(), 0)
}

// findCollection resolves a collection id inside the account's own list,
// which is what keeps rename and delete scoped to the owner.
func (h *Handlers) findCollection(ctx context.Context, masterAccountID, id string) (*dataapi.Collection, error) {
	colls, err := h.api.Collections(ctx, masterAccountID)
	if err != nil {
		return nil, err
	}
	for i := range colls {
		if colls[i].ID == id {
			return &colls[i], nil
		}
	}
	return nil, nil
}

// validateName checks a user-supplied collection or training name.
func validateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", errors.New("Please provide a name.")
	}
	if utf8.RuneCountInString(name) > maxCollectionName {
		return "", fmt.Errorf("That name is too long. Keep it under %d characters.", maxCollectionName)
	}
	return name, nil
}
