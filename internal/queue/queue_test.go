package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestConsumerHandleWritesMailLog(t *testing.T) {
	dir := t.TempDir()
	c := NewConsumer("amqp://unused", "q", dir, zap.NewNop())

	body, err := json.Marshal(CodeIssuedEvent{
		UserID: 3, Email: "a@b.c", Purpose: "ACCOUNT_VERIFY", Code: "123456",
		ExpiresAt: "2026-01-01T00:10:00Z", IssuedAt: "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)
	require.NoError(t, c.handle(body))
	require.NoError(t, c.handle(body))

	data, err := os.ReadFile(filepath.Join(dir, "mail.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "to=a@b.c user_id=3 purpose=ACCOUNT_VERIFY code=123456")
	require.Len(t, splitLines(string(data)), 2)
}

func TestConsumerHandleRejectsGarbage(t *testing.T) {
	c := NewConsumer("amqp://unused", "q", t.TempDir(), zap.NewNop())
	require.Error(t, c.handle([]byte("{not json")))
}

func TestConsumerRunStopsOnCancel(t *testing.T) {
	c := NewConsumer("amqp://127.0.0.1:1/", "q", t.TempDir(), zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, c.Run(ctx), context.DeadlineExceeded)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.NotifyCode(context.Background(), CodeIssuedEvent{UserID: 1, Purpose: "PASSWORD_RESET", Code: "999999"}))
	require.Equal(t, 1, logs.FilterMessage("verification code issued").Len())
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := range s {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}
