package apis

import (
	"context"
	"net/http"

	"github.com/apex/log"
	"github.com/vulcanapp/vulcan/common"
)

// ReadinessProbe checks one backing dependency of the web server
type ReadinessProbe func(ctxt context.Context) error

// APIRestHealthHandler REST handler for liveness and readiness checks
type APIRestHealthHandler struct {
	APIRestHandler
	probes []ReadinessProbe
}

// GetAPIRestHealthHandler define APIRestHealthHandler
func GetAPIRestHealthHandler(probes []ReadinessProbe) (APIRestHealthHandler, error) {
	logTags := log.Fields{
		"module":    "apis",
		"component": "health-handler",
	}
	return APIRestHealthHandler{
		APIRestHandler: APIRestHandler{
			Component: common.Component{LogTags: logTags},
		},
		probes: probes,
	}, nil
}

// Ping godoc
// @Summary Connectivity check
// @tags Health
// @Produce json
// @Success 200 {object} StandardResponse "success"
// @Router /api/v1/ping [get]
func (h APIRestHealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	h.reply(w, http.StatusOK, getStdRESTSuccessMsg(), "GET /api/v1/ping")
}

// PingHandler Wrapper around Ping
func (h APIRestHealthHandler) PingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Ping(w, r)
	}
}

// Alive godoc
// @Summary Liveness check
// @Description Will return success to indicate the web server is live
// @tags Health
// @Produce json
// @Success 200 {object} StandardResponse "success"
// @Router /api/v1/alive [get]
func (h APIRestHealthHandler) Alive(w http.ResponseWriter, r *http.Request) {
	h.reply(w, http.StatusOK, getStdRESTSuccessMsg(), "GET /api/v1/alive")
}

// AliveHandler Wrapper around Alive
func (h APIRestHealthHandler) AliveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Alive(w, r)
	}
}

// Ready godoc
// @Summary Readiness check
// @Description Will return success if every backing dependency is reachable
// @tags Health
// @Produce json
// @Success 200 {object} StandardResponse "success"
// @Failure 500 {object} StandardResponse "error"
// @Router /api/v1/ready [get]
func (h APIRestHealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /api/v1/ready"
	for _, probe := range h.probes {
		if err := probe(r.Context()); err != nil {
			log.WithError(err).WithFields(h.LogTags).Error("Readiness probe failed")
			msg := "not ready"
			h.reply(
				w,
				http.StatusInternalServerError,
				getStdRESTErrorMsg(http.StatusInternalServerError, &msg),
				restCall,
			)
			return
		}
	}
	h.reply(w, http.StatusOK, getStdRESTSuccessMsg(), restCall)
}

// ReadyHandler Wrapper around Ready
func (h APIRestHealthHandler) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Ready(w, r)
	}
}
