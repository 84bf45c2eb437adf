package notify

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	err  error
	sent []Alert
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	r.sent = append(r.sent, a)
	return r.err
}

func TestFallback(t *testing.T) {
	broken := &recorder{err: assert.AnError}
	working := &recorder{}

	err := Fallback{broken, working}.Send(context.Background(), Alert{Subject: "s", Body: "b"})
	require.NoError(t, err)
	assert.Len(t, broken.sent, 1)
	assert.Len(t, working.sent, 1)

	err = Fallback{broken}.Send(context.Background(), Alert{})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestNewWithoutTransportLogs(t *testing.T) {
	log, hook := test.NewNullLogger()

	a := New(Config{}, log)
	require.NoError(t, a.Send(context.Background(), Alert{Subject: "compensation failed", Body: "withdrawal 4"}))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "withdrawal 4", entry.Message)
}

func TestNewBuildsChain(t *testing.T) {
	log, _ := test.NewNullLogger()
	a := New(Config{
		MailjetAPIKey:    "key",
		MailjetSecretKey: "secret",
		SMTPHost:         "smtp.example.com",
		SMTPPort:         587,
	}, log)

	chain := a.(*logged).next.(Fallback)
	require.Len(t, chain, 2)
	assert.IsType(t, &Mailjet{}, chain[0])
	assert.IsType(t, &SMTP{}, chain[1])
}
