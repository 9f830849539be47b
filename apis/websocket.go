package apis

import (
	"net/http"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
	"github.com/vulcanapp/vulcan/common"
	"github.com/vulcanapp/vulcan/gateway"
)

// APIRestRealtimeHandler handler upgrading HTTP requests into the realtime gateway
type APIRestRealtimeHandler struct {
	APIRestHandler
	hub      gateway.Hub
	upgrader websocket.Upgrader
}

// GetAPIRestRealtimeHandler define APIRestRealtimeHandler
func GetAPIRestRealtimeHandler(hub gateway.Hub) (APIRestRealtimeHandler, error) {
	logTags := log.Fields{
		"module":    "apis",
		"component": "realtime-handler",
	}
	return APIRestRealtimeHandler{
		APIRestHandler: APIRestHandler{
			Component: common.Component{LogTags: logTags},
		},
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from the app's own origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Serve godoc
// @Summary Open a realtime event stream
// @Description Upgrade the connection to websocket and register it with the
// realtime gateway. All diary change-events are broadcast over it.
// @tags Realtime
// @Router /ws [get]
func (h APIRestRealtimeHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).WithFields(h.LogTags).Error("Websocket upgrade failed")
		return
	}
	gateway.ServeConnection(h.hub, conn)
}

// ServeHandler Wrapper around Serve
func (h APIRestRealtimeHandler) ServeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r)
	}
}
