package types

import "context"

// Action is a single button attached to an outbound message. Exactly one of
// CallbackData or URL is set: callback actions round-trip through the
// transport's button events, URL actions deep-link into the bot.
type Action struct {
	Label        string
	CallbackData string
	URL          string
}

// Sender is the outbound messaging transport. Implementations must bound each
// call with a timeout; the worker marks the job failed on error rather than
// leaving it pending. Actions are rows of buttons.
type Sender interface {
	SendText(ctx context.Context, userID int64, text string, actions [][]Action) error
	SendPhoto(ctx context.Context, userID int64, photoRef string, caption string, actions [][]Action) error
}

// LinkBuilder produces deep links back into the conversation for a start
// payload ("gol_3" opens lesson day 3). Implementations return "" when no
// link can be built; callers fall back to sending without the button.
type LinkBuilder interface {
	StartLink(payload string) string
}
