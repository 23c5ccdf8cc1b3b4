package agent

import (
	"context"

	"autoclaw/pkg/autoclaw/channels"
)

// replyLoop consumes incoming channel messages and answers them with
// the assistant. It exits when the context is cancelled.
func (a *Agent) replyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-a.Channels.Messages():
			if !ok {
				return
			}
			a.handleIncoming(ctx, msg)
		}
	}
}

func (a *Agent) handleIncoming(ctx context.Context, msg *channels.IncomingMessage) {
	if msg == nil || msg.Type != channels.MessageText || msg.Content == "" {
		return
	}
	a.logger.Debug("incoming message",
		"channel", msg.Channel,
		"from", msg.From,
		"chat", msg.ChatID)

	if a.Assistant == nil {
		return
	}
	reply := a.Assistant.Respond(ctx, msg.ChatID, msg.Channel, msg.Content)
	if reply == "" {
		return
	}

	out := &channels.OutgoingMessage{Content: reply}
	if msg.Channel == "email" {
		out.Subject = "Re: " + subjectOf(msg)
	}
	to := msg.ChatID
	if msg.Channel == "email" {
		to = msg.From
	}
	if err := a.Channels.Send(ctx, msg.Channel, to, out); err != nil {
		a.logger.Warn("auto-reply failed",
			"channel", msg.Channel,
			"to", to,
			"error", err)
	}
}

func subjectOf(msg *channels.IncomingMessage) string {
	if s, ok := msg.Metadata["subject"].(string); ok {
		return s
	}
	return "your message"
}
