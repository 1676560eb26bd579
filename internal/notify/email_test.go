package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("Natours <hello@natours.io>", "jonas@example.com", "Reset", "body text")
	head, body, ok := strings.Cut(msg, "\r\n\r\n")
	assert.True(t, ok)
	assert.Equal(t, "body text", body)
	assert.Contains(t, head, "To: jonas@example.com\r\n")
	assert.Contains(t, head, "Content-Type: text/plain; charset=UTF-8")
}

func TestPasswordResetEmail(t *testing.T) {
	subject, body := PasswordResetEmail("http://localhost/api/v1/users/resetPassword/abc")
	assert.Contains(t, subject, "10 min")
	assert.Contains(t, body, "/resetPassword/abc")
}

func TestLogSender(t *testing.T) {
	var s Sender = LogSender{L: zap.NewNop()}
	assert.NoError(t, s.Send(context.Background(), "a@b.c", "s", "b"))
}

func TestMailerDialFailure(t *testing.T) {
	m := NewMailer("127.0.0.1", 1, "", "", "from@example.com")
	err := m.Send(context.Background(), "to@example.com", "s", "b")
	assert.Error(t, err)
}
