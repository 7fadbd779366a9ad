package dataapi

import "time"

// Generation status values as stored by the data service.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Delivery status values for generation records.
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// GenerationRecord is a generation document returned by the data service.
// RequestPayload holds the exact inputs the tool ran with and is the source
// of truth for tweak and rerun derivation.
type GenerationRecord struct {
	ID              string         `json:"_id"`
	ToolID          string         `json:"toolId"`
	ToolDisplayName string         `json:"toolDisplayName,omitempty"`
	MasterAccountID string         `json:"masterAccountId"`
	SourcePlatform  string         `json:"sourcePlatform,omitempty"`
	Status          string         `json:"status"`
	StatusReason    string         `json:"statusReason,omitempty"`
	DeliveryStatus  string         `json:"deliveryStatus,omitempty"`
	RequestPayload  map[string]any `json:"requestPayload"`
	Responses       []ResponseItem `json:"responsePayload,omitempty"`
	Metadata        GenerationMeta `json:"metadata"`
	CreatedAt       time.Time      `json:"createdAt,omitempty"`
	UpdatedAt       time.Time      `json:"updatedAt,omitempty"`
}

// GenerationMeta carries linkage and routing state for a generation. The
// tweak and rerun paths read ancestor metadata from here and write the
// derived generation's lineage back through it.
type GenerationMeta struct {
	GenerationID       string               `json:"generationId,omitempty"`
	RunID              string               `json:"runId,omitempty"`
	UserInputPrompt    string               `json:"userInputPrompt,omitempty"`
	InitiatingEventID  string               `json:"initiatingEventId,omitempty"`
	TweakParams        map[string]any       `json:"tweakParams,omitempty"`
	IsTweaked          bool                 `json:"isTweaked,omitempty"`
	TweakedFrom        string               `json:"tweakedFromGenerationId,omitempty"`
	IsRerun            bool                 `json:"isRerun,omitempty"`
	RerunFrom          string               `json:"rerunFromGenerationId,omitempty"`
	RerunCount         int                  `json:"rerunCount,omitempty"`
	IsSpell            bool                 `json:"isSpell,omitempty"`
	SpellName          string               `json:"spellName,omitempty"`
	StepGenerationIDs  []string             `json:"stepGenerationIds,omitempty"`
	DeploymentID       string               `json:"deploymentId,omitempty"`
	WorkflowID         string               `json:"workflowId,omitempty"`
	TelegramChatID     int64                `json:"telegramChatId,omitempty"`
	TelegramMessageID  int                  `json:"telegramMessageId,omitempty"`
	PlatformContext    *PlatformContext     `json:"platformContext,omitempty"`
	Notification       *NotificationContext `json:"notificationContext,omitempty"`
}

// PlatformContext identifies the platform-side origin of a request.
type PlatformContext struct {
	Platform  string `json:"platform,omitempty"`
	UserID    int64  `json:"userId,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	ChatID    int64  `json:"chatId,omitempty"`
	ChatType  string `json:"chatType,omitempty"`
	MessageID int    `json:"messageId,omitempty"`
}

// NotificationContext tells the delivery layer where the finished result
// should land.
type NotificationContext struct {
	ChatID           int64 `json:"chatId"`
	MessageID        int   `json:"messageId,omitempty"`
	ReplyToMessageID int   `json:"replyToMessageId,omitempty"`
}

// ResponseItem is one output of a completed generation.
type ResponseItem struct {
	Data ResponseData `json:"data"`
}

// ResponseData carries the media references of a response item.
type ResponseData struct {
	Images     []MediaRef `json:"images,omitempty"`
	Animations []MediaRef `json:"animations,omitempty"`
	Videos     []MediaRef `json:"videos,omitempty"`
	Text       string     `json:"text,omitempty"`
}

// MediaRef points at a generated artifact.
type MediaRef struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
}

// GenerationCreate is the body for creating a generation intent record.
type GenerationCreate struct {
	ToolID          string         `json:"toolId"`
	ToolDisplayName string         `json:"toolDisplayName,omitempty"`
	MasterAccountID string         `json:"masterAccountId"`
	SourcePlatform  string         `json:"sourcePlatform"`
	Status          string         `json:"status"`
	RequestPayload  map[string]any `json:"requestPayload"`
	Metadata        GenerationMeta `json:"metadata"`
}

// ExecuteRequest is the body for handing a prepared generation to the
// execution service.
type ExecuteRequest struct {
	ToolID   string         `json:"toolId"`
	Inputs   map[string]any `json:"inputs"`
	User     ExecuteUser    `json:"user"`
	EventID  string         `json:"eventId"`
	Metadata GenerationMeta `json:"metadata"`
}

// ExecuteUser identifies the requesting account for execution.
type ExecuteUser struct {
	MasterAccountID string `json:"masterAccountId"`
	Platform        string `json:"platform,omitempty"`
}

// ExecuteResult is the execution service acknowledgment.
type ExecuteResult struct {
	GenerationID string `json:"generationId"`
	RunID        string `json:"runId,omitempty"`
	Status       string `json:"status,omitempty"`
}

// ToolUsage is one row of a user's most-frequent-tools summary.
type ToolUsage struct {
	ToolID string `json:"toolId"`
	Count  int    `json:"count"`
}

// Event is an audit record written to the event log.
type Event struct {
	EventID         string         `json:"eventId"`
	Type            string         `json:"type"`
	MasterAccountID string         `json:"masterAccountId,omitempty"`
	SourcePlatform  string         `json:"sourcePlatform,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// ResolveResult is the outcome of a find-or-create identity lookup.
type ResolveResult struct {
	MasterAccountID string `json:"masterAccountId"`
	IsNewUser       bool   `json:"isNewUser,omitempty"`
}

// LiveTask is one in-flight generation in a status report.
type LiveTask struct {
	GenerationID    string `json:"generationId"`
	ToolDisplayName string `json:"toolDisplayName,omitempty"`
	Status          string `json:"status"`
}

// StatusReport summarizes an account for the /status command.
type StatusReport struct {
	Points        int64      `json:"points"`
	Exp           int64      `json:"exp"`
	WalletAddress string     `json:"walletAddress,omitempty"`
	LiveTasks     []LiveTask `json:"liveTasks,omitempty"`
}

// Wallet is one linked wallet of an account.
type Wallet struct {
	Address   string    `json:"address"`
	ChainID   string    `json:"chainId,omitempty"`
	IsPrimary bool      `json:"isPrimary,omitempty"`
	LinkedAt  time.Time `json:"linkedAt,omitempty"`
}

// MagicAmountLink describes a pending magic-amount wallet verification: the
// user proves ownership by sending the exact wei amount to the foundation
// address before the deadline.
type MagicAmountLink struct {
	RequestID      string    `json:"requestId"`
	MagicAmountWei string    `json:"magicAmountWei"`
	ChainID        string    `json:"chainId,omitempty"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Link request modes returned by RequestPlatformLink.
const (
	LinkModeApproval    = "approval"
	LinkModeMagicAmount = "magic-amount"
)

// PlatformLinkRequest asks the data service to link a wallet to an account.
type PlatformLinkRequest struct {
	MasterAccountID string `json:"masterAccountId"`
	WalletAddress   string `json:"walletAddress"`
	Platform        string `json:"platform"`
}

// LinkHolder identifies the account currently holding a contested wallet so
// the bot can route an approval request to it.
type LinkHolder struct {
	Platform   string `json:"platform"`
	PlatformID string `json:"platformId"`
	ChatID     int64  `json:"chatId,omitempty"`
}

// PlatformLinkResult is the data service's answer to a link request. Mode
// selects between holder approval and magic-amount verification.
type PlatformLinkResult struct {
	Mode      string           `json:"mode"`
	RequestID string           `json:"requestId,omitempty"`
	Holder    *LinkHolder      `json:"holder,omitempty"`
	Magic     *MagicAmountLink `json:"magic,omitempty"`
}

// LinkResolution is the outcome of approving, rejecting, or reporting a
// link request.
type LinkResolution struct {
	Status      string `json:"status"`
	ReportCount int    `json:"reportCount,omitempty"`
	Banned      bool   `json:"banned,omitempty"`
}

// Lora is a LoRA model listing entry.
type Lora struct {
	ID           string   `json:"_id"`
	Slug         string   `json:"slug"`
	Name         string   `json:"name"`
	Category     string   `json:"category,omitempty"`
	Checkpoint   string   `json:"checkpoint,omitempty"`
	Description  string   `json:"description,omitempty"`
	PreviewURL   string   `json:"previewUrl,omitempty"`
	TriggerWords []string `json:"triggerWords,omitempty"`
	UsageCount   int64    `json:"usageCount,omitempty"`
}

// LoraPage is one page of a LoRA listing.
type LoraPage struct {
	Items      []Lora `json:"items"`
	Page       int    `json:"page"`
	TotalPages int    `json:"totalPages"`
}

// LoraListParams filters a LoRA listing request.
type LoraListParams struct {
	Category        string
	Checkpoint      string
	Page            int
	PageSize        int
	MasterAccountID string
}

// Collection is a user-owned grouping of generations.
type Collection struct {
	ID              string    `json:"_id"`
	Name            string    `json:"name"`
	MasterAccountID string    `json:"masterAccountId"`
	ItemCount       int       `json:"itemCount,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitempty"`
}

// Training status values.
const (
	TrainingPending   = "pending"
	TrainingRunning   = "running"
	TrainingCompleted = "completed"
	TrainingFailed    = "failed"
)

// Training is a user-owned model training job.
type Training struct {
	ID              string    `json:"_id"`
	Name            string    `json:"name"`
	BaseModel       string    `json:"baseModel"`
	Status          string    `json:"status"`
	Steps           int       `json:"steps,omitempty"`
	MasterAccountID string    `json:"masterAccountId"`
	CreatedAt       time.Time `json:"createdAt,omitempty"`
}
