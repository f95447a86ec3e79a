package v1

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/duynhne/codeyard/internal/client"
	"github.com/duynhne/codeyard/internal/logger"
)

// DefaultMessages holds the texts of mutation notifications. Error keys fall
// back to client.DefaultMessages.
var DefaultMessages = client.Messages{
	"review.saved":         "Your review has been saved.",
	"solution.published":   "Solution published.",
	"solution.unpublished": "Solution unpublished.",
	"solution.deleted":     "Solution deleted.",
}

// Notifier surfaces short-lived messages (toasts) to the user.
type Notifier interface {
	Success(ctx context.Context, message string)
	Error(ctx context.Context, message string)
}

// LogNotifier writes notifications to the context logger.
type LogNotifier struct{}

func (LogNotifier) Success(ctx context.Context, message string) {
	logger.FromContext(ctx).Info().Str("notification", "success").Msg(message)
}

func (LogNotifier) Error(ctx context.Context, message string) {
	logger.FromContext(ctx).Warn().Str("notification", "error").Msg(message)
}

// WriterNotifier prints notifications as single lines, e.g. to a terminal.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Success(_ context.Context, message string) {
	n.write("ok", message)
}

func (n *WriterNotifier) Error(_ context.Context, message string) {
	n.write("error", message)
}

func (n *WriterNotifier) write(level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "[%s] %s\n", level, message)
}
