/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting, resolving
the caller's identity, upgrading the HTTP connection to WebSocket, and driving the session lifecycle.
*/
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tempchat/internal/app/chat"
	"tempchat/internal/app/ws"
	"tempchat/internal/pkg/auth/jwt"
	"tempchat/internal/pkg/errs"
	"tempchat/internal/pkg/limiter"
	"tempchat/internal/pkg/logx"
	"tempchat/internal/pkg/resp"
)

const (
	// disconnectTimeout bounds the store work done after a connection ends.
	disconnectTimeout = 10 * time.Second

	// rejectFlushTimeout bounds the wait for a rejection notice to be written.
	rejectFlushTimeout = 5 * time.Second
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.Allow(ip) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.Error(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		payload, err := jwt.ParseToken(jwt.TokenFromRequest(r), deps.Config.JWTSecret)
		if err != nil {
			logx.Info("WebSocket connection rejected: missing or invalid token.")
			resp.Error(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}
		identity := payload.ID

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		handle := chat.NewHandle()
		client := ws.NewClient(conn, handle, identity)

		deps.Hub.Register(client)
		defer deps.Hub.Unregister(handle)

		go client.WritePump()

		ctx := r.Context()
		sess, customErr := deps.Service.Connect(ctx, identity, handle, time.Now())
		if customErr != nil {
			// The service queued the rejection notice and the close frame.
			select {
			case <-client.Done():
			case <-time.After(rejectFlushTimeout):
			}
			return
		}

		logx.Info("WebSocket connection established and client registered", "identity", identity, "handle", string(handle))

		client.ReadPump(ctx, ws.NewDispatcher(deps.Service, sess, deps.Hub).Handle)

		disconnectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
		defer cancel()
		deps.Service.Disconnect(disconnectCtx, sess)

		logx.Info("WebSocket connection closed", "identity", identity, "handle", string(handle))
	}
}
