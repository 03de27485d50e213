package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courseflow/internal/types"
)

type fakeBotAPI struct {
	sent    []tgbotapi.Chattable
	sendErr error
	me      tgbotapi.User
	meErr   error
}

func (f *fakeBotAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeBotAPI) GetMe() (tgbotapi.User, error) {
	return f.me, f.meErr
}

func TestSender_SendTextWithActions(t *testing.T) {
	fake := &fakeBotAPI{me: tgbotapi.User{UserName: "coursebot"}}
	s := NewWithAPI(fake, nil)

	err := s.SendText(context.Background(), 42, "Day 3 is ready", [][]types.Action{
		{{Label: "Mark viewed", CallbackData: "lesson:viewed:day=3:p=0"}},
		{{Label: "Open", URL: "https://t.me/coursebot?start=gol_3"}},
	})
	require.NoError(t, err)
	require.Len(t, fake.sent, 1)

	msg, ok := fake.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "Day 3 is ready", msg.Text)

	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 2)
	require.NotNil(t, kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "lesson:viewed:day=3:p=0", *kb.InlineKeyboard[0][0].CallbackData)
	require.NotNil(t, kb.InlineKeyboard[1][0].URL)
	assert.Equal(t, "https://t.me/coursebot?start=gol_3", *kb.InlineKeyboard[1][0].URL)
}

func TestSender_SendTextWithoutActionsOmitsKeyboard(t *testing.T) {
	fake := &fakeBotAPI{}
	s := NewWithAPI(fake, nil)

	err := s.SendText(context.Background(), 7, "hello", nil)
	require.NoError(t, err)

	msg, ok := fake.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Nil(t, msg.ReplyMarkup)
}

func TestSender_SendPhoto(t *testing.T) {
	fake := &fakeBotAPI{}
	s := NewWithAPI(fake, nil)

	err := s.SendPhoto(context.Background(), 42, "file-abc", "Quest of the day", nil)
	require.NoError(t, err)
	require.Len(t, fake.sent, 1)

	photo, ok := fake.sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, "Quest of the day", photo.Caption)
	assert.Equal(t, int64(42), photo.ChatID)
}

func TestSender_SendFailureWrapsError(t *testing.T) {
	fake := &fakeBotAPI{sendErr: errors.New("telegram: 502")}
	s := NewWithAPI(fake, nil)

	err := s.SendText(context.Background(), 42, "hello", nil)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamTransport, appErr.Code)
}

func TestSender_CancelledContextShortCircuits(t *testing.T) {
	fake := &fakeBotAPI{}
	s := NewWithAPI(fake, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SendText(ctx, 42, "hello", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.sent)
}

func TestSender_StartLink(t *testing.T) {
	fake := &fakeBotAPI{me: tgbotapi.User{UserName: "coursebot"}}
	s := NewWithAPI(fake, nil)
	assert.Equal(t, "https://t.me/coursebot?start=gol_5", s.StartLink("gol_5"))
}

func TestSender_StartLinkWithoutUsername(t *testing.T) {
	fake := &fakeBotAPI{meErr: errors.New("unauthorized")}
	s := NewWithAPI(fake, nil)
	assert.Empty(t, s.StartLink("gol_5"))
}
