package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reporting-service/internal/logging"
	"reporting-service/internal/models"
)

type fakeMessaging struct {
	messages []*messaging.Message
	err      error
}

func (f *fakeMessaging) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.messages = append(f.messages, m)
	if f.err != nil {
		return "", f.err
	}
	return "projects/test/messages/1", nil
}

func TestFCMSendBuildsAndroidHighPriority(t *testing.T) {
	fake := &fakeMessaging{}
	f := &FCM{client: fake, logger: logging.NewDiscard()}

	msg := models.Message{Title: "🚨 Failure Reported", Body: "Failure on unit ABC-1", Data: map[string]string{"kind": "failure"}}
	require.NoError(t, f.Send(context.Background(), "device-token", msg))

	require.Len(t, fake.messages, 1)
	m := fake.messages[0]
	assert.Equal(t, "device-token", m.Token)
	assert.Empty(t, m.Topic)
	assert.Equal(t, "🚨 Failure Reported", m.Notification.Title)
	assert.Equal(t, "Failure on unit ABC-1", m.Notification.Body)
	assert.Equal(t, "failure", m.Data["kind"])
	assert.Equal(t, "high", m.Android.Priority)
	assert.Equal(t, "default", m.Android.Notification.Sound)
}

func TestFCMSendToTopic(t *testing.T) {
	fake := &fakeMessaging{}
	f := &FCM{client: fake, logger: logging.NewDiscard()}

	require.NoError(t, f.SendToTopic(context.Background(), "regulators", models.Message{Title: "Delay Reported"}))
	require.Len(t, fake.messages, 1)
	assert.Equal(t, "regulators", fake.messages[0].Topic)
	assert.Empty(t, fake.messages[0].Token)
}

func TestFCMSendError(t *testing.T) {
	f := &FCM{client: &fakeMessaging{err: errors.New("quota exceeded")}, logger: logging.NewDiscard()}
	err := f.Send(context.Background(), "t", models.Message{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestNewFCMWithoutCredentials(t *testing.T) {
	_, err := NewFCM(context.Background(), FCMConfig{}, logging.NewDiscard())
	require.ErrorIs(t, err, ErrNoCredentials)
}

type fakeTelegram struct {
	mu     sync.Mutex
	params []*bot.SendMessageParams
	fails  int
}

func (f *fakeTelegram) SendMessage(_ context.Context, p *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, p)
	if f.fails > 0 {
		f.fails--
		return nil, errors.New("too many requests")
	}
	return &tgmodels.Message{ID: 1}, nil
}

func TestTelegramAnnounce(t *testing.T) {
	fake := &fakeTelegram{}
	tg := newTelegram(fake, 42, 10, logging.NewDiscard())

	corridor, route, minutes := int64(10), int64(1), int64(5)
	report := models.Report{ID: 7, EmitterUserID: 2, AffectedCorridorID: &corridor, AffectedRouteID: &route, DelayMinutes: &minutes}
	require.NoError(t, tg.Announce(context.Background(), report, models.Message{Title: "Delay Reported", Body: "Delay on route 1."}))

	require.Len(t, fake.params, 1)
	p := fake.params[0]
	assert.Equal(t, int64(42), p.ChatID)
	assert.Equal(t, tgmodels.ParseModeMarkdown, p.ParseMode)
	text := p.Text
	assert.Contains(t, text, "*Delay Reported*")
	assert.Contains(t, text, "*Corridor:* 10")
	assert.Contains(t, text, "*Delay:* 5 min")
	assert.Contains(t, text, `route 1\.`)
}

func TestTelegramRetries(t *testing.T) {
	fake := &fakeTelegram{fails: 1}
	tg := newTelegram(fake, 42, 10, logging.NewDiscard())

	require.NoError(t, tg.Announce(context.Background(), models.Report{ID: 1}, models.Message{Title: "x"}))
	assert.Len(t, fake.params, 2)
}

func TestNewTelegramRequiresChat(t *testing.T) {
	_, err := NewTelegram("token", 0, 1, logging.NewDiscard())
	require.Error(t, err)
}

func TestHubAnnounce(t *testing.T) {
	hub := NewHub(logging.NewDiscard())
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.AddConnection(1, conn)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Announce(context.Background(), models.Report{ID: 9, Kind: models.KindDeviation}, models.Message{Title: "Deviation Reported", Body: "b"}))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "report", ev.Type)
	assert.Equal(t, "Deviation Reported", ev.Title)
	require.NotNil(t, ev.Report)
	assert.Equal(t, int64(9), ev.Report.ID)

	hub.Close()
	assert.Zero(t, hub.Count())
}

func TestHubBroadcastDoesNotWaitForSlowClient(t *testing.T) {
	hub := NewHub(logging.NewDiscard())
	defer hub.Close()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.AddConnection(1, conn)
	}))
	defer srv.Close()

	// The client never reads, so socket buffers fill and writes stall.
	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	frame := make([]byte, 1<<20)
	start := time.Now()
	for i := 0; i < 4*sendQueueSize; i++ {
		hub.Broadcast(frame)
	}
	assert.Less(t, time.Since(start), time.Second)

	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubConnectionLimit(t *testing.T) {
	hub := NewHub(logging.NewDiscard())
	for i := 0; i < maxConnsPerUser; i++ {
		assert.True(t, hub.AddConnection(3, &websocket.Conn{}))
	}
	assert.False(t, hub.AddConnection(3, &websocket.Conn{}))
	assert.Equal(t, maxConnsPerUser, hub.Count())
}
