package generation

import (
	"context"
	"log/slog"
	"sync"
)

// Status texts shown to the user while a generation runs.
const (
	StatusWritingCopy = "Writing carousel copy..."
	StatusHookImage   = "Generating hook slide image..."
	StatusImagesReady = "Generating slide images... (%d/%d ready)"
	StatusRendering   = "Rendering %d slides..."
	StatusSending     = "Sending carousel..."
)

// ProgressNotifier edits a single status message. Repeating the last text
// is a no-op. Safe for concurrent use.
type ProgressNotifier struct {
	delivery  Delivery
	chatID    int64
	messageID int
	logger    *slog.Logger

	mu   sync.Mutex
	last string
}

// NewProgressNotifier creates a notifier for the status message messageID.
// A zero messageID disables editing.
func NewProgressNotifier(delivery Delivery, chatID int64, messageID int, logger *slog.Logger) *ProgressNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressNotifier{
		delivery:  delivery,
		chatID:    chatID,
		messageID: messageID,
		logger:    logger,
	}
}

// Update shows text on the status message. Delivery errors are logged and
// swallowed.
func (n *ProgressNotifier) Update(ctx context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if text == n.last {
		return
	}
	n.last = text

	if n.messageID == 0 {
		return
	}
	if err := n.delivery.EditMessage(ctx, n.chatID, n.messageID, text); err != nil {
		n.logger.Debug("failed to update status message",
			slog.Int64("chat_id", n.chatID),
			slog.String("error", err.Error()))
	}
}

// Last returns the most recent text passed to Update.
func (n *ProgressNotifier) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}
