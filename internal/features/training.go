package features

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
	"github.com/nextlevelbuilder/musebot/internal/dispatch"
	"github.com/nextlevelbuilder/musebot/internal/markup"
	"github.com/nextlevelbuilder/musebot/internal/state"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
)

// trainingNameRe keeps training names short and callback-data safe: they
// ride inside train:create:<base>:<name> presses.
var trainingNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _-]{0,39}$`)

// trainingBases are the base models a new training can start from.
var trainingBases = []string{"SDXL", "SD1.5", "FLUX"}

// handleTrain serves /train with the training job list.
func (h *Handlers) handleTrain(ctx context.Context, msg *telego.Message, masterAccountID string, _ []string) error {
	return h.renderTrainings(ctx, masterAccountID, msg.Chat.ID, 0)
}

// trainCallback routes train:* presses.
func (h *Handlers) trainCallback(ctx context.Context, p *dispatch.Press) error {
	rest := strings.TrimPrefix(p.Data(), "train:")
	switch {
	case rest == "list":
		return h.renderTrainings(ctx, p.MasterAccountID, p.ChatID(), p.MessageID())
	case rest == "new":
		return h.trainingNamePrompt(ctx, p)
	case strings.HasPrefix(rest, "view:"):
		return h.renderTrainingDetail(ctx, p, strings.TrimPrefix(rest, "view:"))
	case strings.HasPrefix(rest, "create:"):
		return h.createTraining(ctx, p, strings.TrimPrefix(rest, "create:"))
	default:
		slog.Warn("unrouted training action", "data", p.Data())
		return nil
	}
}

// renderTrainings paints the account's training jobs.
func (h *Handlers) renderTrainings(ctx context.Context, masterAccountID string, chatID int64, messageID int) error {
	jobs, err := h.api.Trainings(ctx, masterAccountID)
	if err != nil {
		slog.Error("training list failed", "error", err)
		return h.paint(ctx, chatID, messageID, markup.Escape(genErrText), nil)
	}

	kb := telegram.NewKeyboard()
	for _, job := range jobs {
		kb.Row(telegram.Button(trainingGlyph(job.Status)+" "+job.Name, "train:view:"+job.ID))
	}
	kb.Row(telegram.Button("➕ New training", "train:new"))
	kb.Row(telegram.Button("⬅️ Back", "menu:main"))

	parts := []markup.Safe{markup.Bold("🧪 Training"), markup.Raw("\n")}
	if len(jobs) == 0 {
		parts = append(parts, markup.Escape("No training jobs yet."))
	} else {
		parts = append(parts, markup.Escapef("%d jobs.", len(jobs)))
	}
	return h.paint(ctx, chatID, messageID, markup.Join(parts...), kb.Markup())
}

// renderTrainingDetail paints one training job.
func (h *Handlers) renderTrainingDetail(ctx context.Context, p *dispatch.Press, id string) error {
	job, err := h.api.Training(ctx, id)
	if err != nil {
		if dataapi.IsNotFound(err) {
			p.Alert(ctx, "This training job no longer exists.")
		} else {
			slog.Error("training fetch failed", "training_id", id, "error", err)
			p.Alert(ctx, genErrText)
		}
		return nil
	}
	if job.MasterAccountID != p.MasterAccountID {
		p.Toast(ctx, notYoursText)
		return nil
	}

	parts := []markup.Safe{
		markup.Bold("🧪 " + job.Name), markup.Raw("\n"),
		markup.Escapef("%s %s", trainingGlyph(job.Status), job.Status), markup.Raw("\n"),
		markup.Escapef("Base: %s", job.BaseModel), markup.Raw("\n"),
	}
	if job.Steps > 0 {
		parts = append(parts, markup.Escapef("Steps: %d", job.Steps), markup.Raw("\n"))
	}
	if !job.CreatedAt.IsZero() {
		parts = append(parts, markup.Escapef("Created: %s", job.CreatedAt.UTC().Format("2006-01-02")), markup.Raw("\n"))
	}

	kb := telegram.NewKeyboard().Row(telegram.Button("⬅️ Back", "train:list")).Markup()
	return h.paint(ctx, p.ChatID(), p.MessageID(), markup.Join(parts...), kb)
}

// trainingNamePrompt asks for the new job's name.
func (h *Handlers) trainingNamePrompt(ctx context.Context, p *dispatch.Press) error {
	prompt, err := h.tg.SendMessage(ctx, telegram.SendParams{
		ChatID: p.ChatID(),
		Text:   markup.Escape("Reply to this message with a name for the training (letters, digits, spaces, - and _; 40 characters max)."),
	})
	if err != nil {
		return fmt.Errorf("send name prompt: %w", err)
	}
	h.state.Replies.Put(
		state.MessageRef{ChatID: prompt.Chat.ID, MessageID: prompt.MessageID},
		state.TrainingName{
			MasterAccountID: p.MasterAccountID,
			MenuChatID:      p.ChatID(),
			MenuMessageID:   p.MessageID(),
		},
	)
	return nil
}

// trainingNameReply validates the name and offers the base model picker.
func (h *Handlers) trainingNameReply(ctx context.Context, msg *telego.Message, masterAccountID string, rc state.ReplyContext) error {
	req, ok := rc.(state.TrainingName)
	if !ok || msg.ReplyToMessage == nil {
		return nil
	}
	promptRef := state.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ReplyToMessage.MessageID}
	if req.MasterAccountID != masterAccountID {
		h.state.Replies.Put(promptRef, rc)
		return nil
	}

	name := strings.TrimSpace(msg.Text)
	if !trainingNameRe.MatchString(name) {
		h.state.Replies.Put(promptRef, rc)
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID,
			markup.Escape("That name won't work. Use letters, digits, spaces, - or _, up to 40 characters."))
	}

	h.dropScaffolding(ctx, msg)

	buttons := make([]telego.InlineKeyboardButton, 0, len(trainingBases))
	for _, base := range trainingBases {
		buttons = append(buttons, telegram.Button(base, "train:create:"+base+":"+name))
	}
	kb := telegram.NewKeyboard()
	kb.Grid(3, buttons...)
	kb.Row(telegram.Button("Cancel", "train:list"))

	return h.paint(ctx, req.MenuChatID, req.MenuMessageID,
		markup.Escapef("Pick a base model for %q.", name), kb.Markup())
}

// createTraining handles train:create:<base>:<name>: final validation and
// the create call.
func (h *Handlers) createTraining(ctx context.Context, p *dispatch.Press, rest string) error {
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		slog.Warn("malformed training create data", "data", p.Data())
		return nil
	}
	base, name := parts[0], parts[1]
	if !containsID(trainingBases, base) || !trainingNameRe.MatchString(name) {
		slog.Warn("rejected training create data", "data", p.Data())
		p.Alert(ctx, genErrText)
		return nil
	}

	job, err := h.api.CreateTraining(ctx, p.MasterAccountID, name, base)
	if err != nil {
		return fmt.Errorf("create training: %w", err)
	}
	p.Toast(ctx, "🧪 Training created")

	text := markup.Join(
		markup.Escapef("✅ %s queued on %s.", job.Name, job.BaseModel), markup.Raw("\n"),
		markup.Escape("Job id: "), markup.Code(job.ID),
	)
	kb := telegram.NewKeyboard().Row(telegram.Button("⬅️ Back", "train:list")).Markup()
	return h.paint(ctx, p.ChatID(), p.MessageID(), text, kb)
}

func trainingGlyph(status string) string {
	switch status {
	case dataapi.TrainingPending:
		return "⏳"
	case dataapi.TrainingRunning:
		return "🔄"
	case dataapi.TrainingCompleted:
		return "✅"
	case dataapi.TrainingFailed:
		return "❌"
	default:
		return "▫️"
	}
}
