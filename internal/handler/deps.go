package handler

import (
	"tempchat/internal/app/chat"
	"tempchat/internal/app/storage"
	"tempchat/internal/app/ws"
	"tempchat/internal/configs"
)

// AppDeps carries the collaborators shared by every HTTP handler.
type AppDeps struct {
	Config  *configs.AppConfig
	Service *chat.Service
	Hub     *ws.Hub

	// StorageService is nil unless image offload is configured.
	StorageService storage.StorageService
}
