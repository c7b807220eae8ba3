package handler

import (
	"net/http"

	"agriscan/internal/logger"
	"agriscan/internal/service"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GalleryWebsocketHandler registers the connection with the hub, which then
// pushes images, upload_progress and analysis events. Incoming messages are
// ignored; reading only detects the disconnect.
func GalleryWebsocketHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		manager.GetWebsocketService().Register(connection)
		defer manager.GetWebsocketService().Unregister(connection)

		logger.Info("Gallery client connected")

		for {
			_, _, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Gallery client disconnected normally")
				} else {
					logger.Warning("Gallery client disconnected with error: %v", err)
				}
				break
			}
		}
	}
}
