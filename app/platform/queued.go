package platform

import "context"

// Submitter runs outbound calls, possibly asynchronously with retries.
type Submitter interface {
	Submit(ctx context.Context, action, endpoint string, run func() error) error
}

// Queued sends replies through a Submitter. Reads, restrictions and callback
// answers stay synchronous.
type Queued struct {
	Port
	Sender Submitter
}

// SendText queues a text reply.
func (q Queued) SendText(ctx context.Context, chatID int64, text string, buttons []Button) error {
	detached := context.WithoutCancel(ctx)
	return q.Sender.Submit(ctx, "send_text", "sendMessage", func() error {
		return q.Port.SendText(detached, chatID, text, buttons)
	})
}

// SendMedia queues a media reply.
func (q Queued) SendMedia(ctx context.Context, chatID int64, url string, kind MediaKind) error {
	endpoint := "sendPhoto"
	if kind == MediaAnimation {
		endpoint = "sendAnimation"
	}
	detached := context.WithoutCancel(ctx)
	return q.Sender.Submit(ctx, "send_media", endpoint, func() error {
		return q.Port.SendMedia(detached, chatID, url, kind)
	})
}
