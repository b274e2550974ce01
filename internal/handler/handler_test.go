package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"tempchat/internal/app/chat"
	"tempchat/internal/app/store/memory"
	"tempchat/internal/app/user"
	"tempchat/internal/app/ws"
	"tempchat/internal/configs"
	"tempchat/internal/pkg/auth/jwt"
	"tempchat/internal/pkg/errs"
	"tempchat/internal/pkg/limiter"
)

const testSecret = "handler-test-secret"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type testEnv struct {
	server  *httptest.Server
	service *chat.Service
	hub     *ws.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	hub := ws.NewHub()
	service := chat.NewService(memory.New(), user.NewMemoryDirectory(), hub, chat.Options{})

	deps := &AppDeps{
		Config: &configs.AppConfig{
			Environment: "development",
			JWTSecret:   testSecret,
		},
		Service: service,
		Hub:     hub,
	}
	limits := Limiters{
		Guest: limiter.NewIPRateLimiter(rate.Inf, 1),
		Join:  limiter.NewIPRateLimiter(rate.Inf, 1),
	}

	server := httptest.NewServer(Router(deps, limits))
	t.Cleanup(server.Close)

	return &testEnv{server: server, service: service, hub: hub}
}

func tokenFor(t *testing.T, identity string) string {
	t.Helper()

	token, err := jwt.GenerateToken(&jwt.Payload{ID: identity}, testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) dial(t *testing.T, identity string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + tokenFor(t, identity)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readEvent(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

// readUntil skips events until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) envelope {
	t.Helper()

	for i := 0; i < 20; i++ {
		if env := readEvent(t, conn); env.Type == eventType {
			return env
		}
	}
	t.Fatalf("no %s event received", eventType)
	return envelope{}
}

func send(t *testing.T, conn *websocket.Conn, frame any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) call(t *testing.T, method, path, token string, body any) (int, apiResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out apiResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

func TestWebSocket_AdmitsAndReplaysState(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "alice")

	presence := readEvent(t, conn)
	assert.Equal(t, chat.EventPresenceCount, presence.Type)
	assert.JSONEq(t, `{"n":1}`, string(presence.Payload))

	welcome := readEvent(t, conn)
	assert.Equal(t, chat.EventWelcome, welcome.Type)
	assert.Contains(t, string(welcome.Payload), `"identity":"alice"`)

	history := readEvent(t, conn)
	assert.Equal(t, chat.EventHistory, history.Type)
	assert.JSONEq(t, `{"messages":[]}`, string(history.Payload))

	typing := readEvent(t, conn)
	assert.Equal(t, chat.EventTypingCount, typing.Type)
	assert.JSONEq(t, `{"n":0}`, string(typing.Payload))
}

func TestWebSocket_SecondConnectionIsRejected(t *testing.T) {
	env := newTestEnv(t)
	first := env.dial(t, "alice")
	readUntil(t, first, chat.EventTypingCount)

	second := env.dial(t, "alice")
	rejected := readEvent(t, second)
	assert.Equal(t, chat.EventConnectionRejected, rejected.Type)
	assert.JSONEq(t, `{"reason":"already connected"}`, string(rejected.Payload))

	require.NoError(t, second.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := second.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, ws.WsCloseCodeRejected), "got %v", err)

	// The first connection is still the live one.
	send(t, first, map[string]any{"type": ws.OpStartTyping})
	typing := readUntil(t, first, chat.EventTypingCount)
	assert.JSONEq(t, `{"n":1}`, string(typing.Payload))
	assert.Equal(t, 1, env.service.PresenceCount())
}

func TestWebSocket_MessageLifecycle(t *testing.T) {
	env := newTestEnv(t)

	bob := env.dial(t, "bob")
	readUntil(t, bob, chat.EventTypingCount)
	alice := env.dial(t, "alice")
	readUntil(t, alice, chat.EventTypingCount)

	send(t, alice, map[string]any{
		"type":    ws.OpCreateMessage,
		"token":   "local-1",
		"payload": map[string]any{"content": "now you see me", "ttl": "disconnect"},
	})

	var created chat.MessagePayload
	require.NoError(t, json.Unmarshal(readUntil(t, bob, chat.EventMessageCreated).Payload, &created))
	assert.Equal(t, "now you see me", created.Content)
	assert.Equal(t, "alice", created.Author.ID)
	assert.Equal(t, "local-1", created.IdempotencyToken)
	assert.Equal(t, "disconnect", created.ExpiresLabel)

	var echoed chat.MessagePayload
	require.NoError(t, json.Unmarshal(readUntil(t, alice, chat.EventMessageCreated).Payload, &echoed))
	assert.Equal(t, "local-1", echoed.IdempotencyToken)

	// A second send straight away trips flood control and is reported to the sender only.
	send(t, alice, map[string]any{
		"type":    ws.OpCreateMessage,
		"token":   "local-2",
		"payload": map[string]any{"content": "too fast"},
	})
	var rejection chat.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, alice, chat.EventError).Payload, &rejection))
	assert.Equal(t, errs.ErrRateLimitExceeded, rejection.Code)
	assert.Equal(t, "local-2", rejection.Token)

	require.NoError(t, alice.Close())

	presence := readUntil(t, bob, chat.EventPresenceCount)
	assert.JSONEq(t, `{"n":1}`, string(presence.Payload))
	expired := readUntil(t, bob, chat.EventMessageExpired)
	assert.JSONEq(t, `{"id":`+strconv.FormatInt(created.ID, 10)+`}`, string(expired.Payload))
}

func TestWebSocket_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	_, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestGuestLoginAndProfile(t *testing.T) {
	env := newTestEnv(t)

	status, res := env.call(t, http.MethodPost, "/api/auth/guest", "", map[string]any{"name": "Ada"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 0, res.Code)

	var login struct {
		Token string    `json:"token"`
		User  user.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &login))
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, "Ada", login.User.Name)

	payload, err := jwt.ParseToken(login.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, login.User.ID, payload.ID)

	status, res = env.call(t, http.MethodGet, "/api/user/profile", login.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(res.Data), `"name":"Ada"`)

	status, res = env.call(t, http.MethodPost, "/api/user/profile", login.Token, map[string]any{"color": "#112233"})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(res.Data), `"color":"#112233"`)

	_, res = env.call(t, http.MethodPost, "/api/user/profile", login.Token, map[string]any{"color": "blue"})
	assert.Equal(t, errs.ErrInvalidProfile, res.Code)

	status, res = env.call(t, http.MethodGet, "/api/user/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errs.ErrUnauthorized, res.Code)
}

func TestGetImage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, customErr := env.service.Connect(ctx, "alice", chat.NewHandle(), time.Now())
	require.Nil(t, customErr)
	msg, customErr := env.service.CreateMessage(ctx, sess, chat.Draft{Image: pngHeader}, time.Now())
	require.Nil(t, customErr)

	res, err := http.Get(env.server.URL + chat.ImageURL(msg.ID))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "image/png", res.Header.Get("Content-Type"))
	assert.Equal(t, "no-store", res.Header.Get("Cache-Control"))

	var body bytes.Buffer
	_, err = body.ReadFrom(res.Body)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, body.Bytes())

	status, out := env.call(t, http.MethodGet, chat.ImageURL(msg.ID+100), "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errs.ErrMessageNotFound, out.Code)

	status, out = env.call(t, http.MethodGet, "/api/images/abc", "", nil)
	assert.Equal(t, errs.ErrInvalidParams, out.Code)
	assert.Equal(t, http.StatusOK, status)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	status, res := env.call(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(res.Data), `"status":"ok"`)
}

func TestWebSocket_MalformedImageIsRateLimited(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")
	readUntil(t, alice, chat.EventTypingCount)

	for _, tc := range []struct {
		token string
		code  int
	}{
		{token: "bad-1", code: errs.ErrImageTypeInvalid},
		{token: "bad-2", code: errs.ErrRateLimitExceeded},
	} {
		send(t, alice, map[string]any{
			"type":    ws.OpCreateMessage,
			"token":   tc.token,
			"payload": map[string]any{"image": "%%% not base64 %%%"},
		})

		var rejection chat.ErrorPayload
		require.NoError(t, json.Unmarshal(readUntil(t, alice, chat.EventError).Payload, &rejection))
		assert.Equal(t, tc.code, rejection.Code)
		assert.Equal(t, tc.token, rejection.Token)
	}
}
