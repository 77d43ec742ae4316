package channels

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/service"
	xhttp "FxPulse/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message() service.Message {
	return service.Message{
		Subject: "EUR/USD 1h: LONG",
		Text:    "EUR/USD on 1h changed from hold to long",
		Candidate: models.NotificationCandidate{
			ID:          "n1",
			Kind:        models.KindSignalChange,
			Pair:        "EUR/USD",
			Timeframe:   models.TF1h,
			GeneratedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		},
	}
}

func TestTelegram_Send(t *testing.T) {
	var got telegramRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(xhttp.NewClient(), srv.URL, "TOKEN")
	require.NoError(t, tg.Send(context.Background(), "42", message()))
	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", got.ChatID)
	assert.True(t, strings.HasPrefix(got.Text, "EUR/USD 1h: LONG\n"))
	assert.Equal(t, models.ChannelTelegram, tg.Channel())
}

func TestTelegram_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"description":"bot was blocked by the user"}`))
	}))
	defer srv.Close()

	err := NewTelegram(nil, srv.URL, "TOKEN").Send(context.Background(), "42", message())
	require.Error(t, err)
	var se *xhttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
}

func TestTelegram_TransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewTelegram(xhttp.NewClient(xhttp.WithTimeout(time.Second)), url, "SECRET-TOKEN").Send(context.Background(), "42", message())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-TOKEN")
}

func TestDiscord_Send(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	msg := message()
	msg.Candidate.Transition = &models.Transition{Current: models.SignalState{Signal: models.SignalLong}}
	require.NoError(t, NewDiscord(time.Second).Send(context.Background(), srv.URL, msg))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "EUR/USD 1h: LONG", got.Embeds[0].Title)
	assert.Equal(t, 0x2ECC71, got.Embeds[0].Color)
	assert.Equal(t, "2026-03-02T10:00:00Z", got.Embeds[0].Timestamp)
}

func TestDiscord_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscord(time.Second).Send(context.Background(), srv.URL, message())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestEmail_Send(t *testing.T) {
	var gotAddr string
	var gotTo []string
	var gotBody string
	e := NewEmail("smtp.example.com", 587, "user", "pass", "alerts@example.com").
		WithSendMail(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotTo, gotBody = addr, to, string(msg)
			assert.NotNil(t, a)
			assert.Equal(t, "alerts@example.com", from)
			return nil
		})

	require.NoError(t, e.Send(context.Background(), "u1@example.com", message()))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"u1@example.com"}, gotTo)
	assert.Contains(t, gotBody, "Subject: EUR/USD 1h: LONG\r\n")
	assert.Contains(t, gotBody, "changed from hold to long")
}

func TestEmail_RejectsHeaderInjection(t *testing.T) {
	e := NewEmail("smtp.example.com", 25, "", "", "a@example.com").
		WithSendMail(func(string, smtp.Auth, string, []string, []byte) error {
			t.Fatal("send must not be called")
			return nil
		})
	require.Error(t, e.Send(context.Background(), "x@example.com\r\nBcc: y@example.com", message()))
}

func TestEmail_ContextTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	e := NewEmail("smtp.example.com", 25, "", "", "a@example.com").
		WithSendMail(func(string, smtp.Auth, string, []string, []byte) error {
			<-release
			return nil
		})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.Send(ctx, "x@example.com", message())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type stubSessions struct{ n int }

func (s *stubSessions) Deliver(string, []byte) int { return s.n }

type stubInbox struct {
	err   error
	calls int
	last  interface{}
}

func (s *stubInbox) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	s.calls++
	s.last = payload
	if msgType != InboxMessageType {
		return errors.New("wrong type")
	}
	return s.err
}

func TestInApp_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("live session only", func(t *testing.T) {
		inbox := &stubInbox{err: errors.New("redis down")}
		assert.NoError(t, NewInApp(&stubSessions{n: 1}, inbox).Send(ctx, "u1", message()))
		assert.Zero(t, inbox.calls)
	})

	t.Run("offline but stored", func(t *testing.T) {
		inbox := &stubInbox{}
		require.NoError(t, NewInApp(&stubSessions{}, inbox).Send(ctx, "u1", message()))
		frame, ok := inbox.last.(Frame)
		require.True(t, ok)
		assert.Equal(t, "u1", frame.SubscriberID)
		assert.Equal(t, "n1", frame.NotificationID)
	})

	t.Run("both paths fail", func(t *testing.T) {
		err := NewInApp(&stubSessions{}, &stubInbox{err: errors.New("redis down")}).Send(ctx, "u1", message())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis down")
	})

	t.Run("no inbox configured", func(t *testing.T) {
		assert.Error(t, NewInApp(&stubSessions{}, nil).Send(ctx, "u1", message()))
		assert.NoError(t, NewInApp(&stubSessions{n: 2}, nil).Send(ctx, "u1", message()))
	})
}

func TestInboxJob_Handle(t *testing.T) {
	raw, err := json.Marshal(NewFrame("u1", message()))
	require.NoError(t, err)

	job := NewInboxJob(&stubSessions{})
	assert.Equal(t, InboxMessageType, job.Type())
	assert.ErrorIs(t, job.Handle(context.Background(), json.RawMessage(raw)), ErrSubscriberOffline)

	job = NewInboxJob(&stubSessions{n: 1})
	assert.NoError(t, job.Handle(context.Background(), json.RawMessage(raw)))

	assert.Error(t, job.Handle(context.Background(), 42))
}
