// Copyright 2024-2025 The vulcan Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package apis

import (
	"encoding/json"
	"net/http"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/vulcanapp/vulcan/auth"
	"github.com/vulcanapp/vulcan/common"
	"github.com/vulcanapp/vulcan/storage"
)

// APIRestAuthHandler REST handler for session management
type APIRestAuthHandler struct {
	APIRestHandler
	issuer   auth.TokenIssuer
	gate     auth.SessionGate
	users    storage.UserStore
	validate *validator.Validate
}

// GetAPIRestAuthHandler define APIRestAuthHandler
func GetAPIRestAuthHandler(
	issuer auth.TokenIssuer,
	gate auth.SessionGate,
	users storage.UserStore,
	requestLogging common.HTTPRequestLogging,
) (APIRestAuthHandler, error) {
	logTags := log.Fields{
		"module":    "apis",
		"component": "auth-handler",
	}
	return APIRestAuthHandler{
		APIRestHandler: APIRestHandler{
			Component:   common.Component{LogTags: logTags},
			reqIDHeader: requestLogging.RequestIDHeader,
		},
		issuer:   issuer,
		gate:     gate,
		users:    users,
		validate: validator.New(),
	}, nil
}

// startSession issue a fresh credential pair and attach it as cookies
func (h APIRestAuthHandler) startSession(w http.ResponseWriter, identity auth.Identity) error {
	access, refresh, err := h.issuer.IssuePair(identity)
	if err != nil {
		return err
	}
	h.gate.SetSessionCookies(w, access, refresh)
	return nil
}

// loginRequest login request parameters
type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// sessionResponse response carrying the session owner's identity
type sessionResponse struct {
	StandardResponse
	Identity auth.Identity `json:"identity"`
}

// replyUnauthorized write a structured 401 response
func (h APIRestAuthHandler) replyUnauthorized(
	w http.ResponseWriter, reason string, restCall string,
) {
	h.reply(
		w,
		http.StatusUnauthorized,
		getStdRESTErrorMsg(http.StatusUnauthorized, &reason),
		restCall,
	)
}

// Login godoc
// @Summary Start a new session
// @Description Check a username (or email) and password pair, and on success
// issue the access and refresh session cookies.
// @tags Authen
// @Accept json
// @Produce json
// @Param credential body loginRequest true "Login credentials"
// @Success 200 {object} sessionResponse "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 401 {object} StandardResponse "error"
// @Router /api/v1/authen/login [post]
func (h APIRestAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /api/v1/authen/login"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	var params loginRequest
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		h.reply(w, http.StatusBadRequest, getStdRESTErrorMsg(http.StatusBadRequest, &msg), restCall)
		return
	}
	if err := h.validate.Struct(&params); err != nil {
		msg := "Request body missing required fields"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		h.reply(w, http.StatusBadRequest, getStdRESTErrorMsg(http.StatusBadRequest, &msg), restCall)
		return
	}

	passed, user, err := h.users.CheckPassword(r.Context(), params.Username, params.Password)
	if err != nil {
		msg := "Unable to check login credentials"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		h.reply(
			w,
			http.StatusInternalServerError,
			getStdRESTErrorMsg(http.StatusInternalServerError, &msg),
			restCall,
		)
		return
	}
	if !passed {
		log.WithFields(localLogTags).Infof("Login rejected for %s", params.Username)
		h.replyUnauthorized(w, "Incorrect username or password", restCall)
		return
	}

	identity := user.Identity()
	if err := h.startSession(w, identity); err != nil {
		msg := "Unable to issue session credentials"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		h.reply(
			w,
			http.StatusInternalServerError,
			getStdRESTErrorMsg(http.StatusInternalServerError, &msg),
			restCall,
		)
		return
	}

	log.WithFields(localLogTags).Infof("Started session for %s", identity.Username)
	h.reply(
		w,
		http.StatusOK,
		sessionResponse{StandardResponse: getStdRESTSuccessMsg(), Identity: identity},
		restCall,
	)
}

// LoginHandler Wrapper around Login
func (h APIRestAuthHandler) LoginHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.Login(w, r)
	})
}

// Refresh godoc
// @Summary Renew the session credentials
// @Description Re-issue the session cookie pair against the refresh cookie.
// An expired refresh credential is accepted as long as its signature is
// authentic.
// @tags Authen
// @Produce json
// @Success 200 {object} sessionResponse "success"
// @Failure 401 {object} StandardResponse "error"
// @Router /api/v1/authen/refresh [post]
func (h APIRestAuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /api/v1/authen/refresh"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	result := h.gate.Check(r, auth.RefreshToken)
	switch result.Status {
	case auth.StatusOK, auth.StatusExpired:
		// an authentic but stale credential still names a known user
	case auth.StatusMissing:
		h.replyUnauthorized(w, "No refresh credential provided", restCall)
		return
	default:
		h.replyUnauthorized(w, "Refresh credential is not authentic", restCall)
		return
	}

	user, err := h.users.GetByID(r.Context(), result.Identity.ID)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Warnf(
			"Refresh rejected for unknown user %s", result.Identity.ID,
		)
		h.replyUnauthorized(w, "Session owner no longer exists", restCall)
		return
	}

	identity := user.Identity()
	if err := h.startSession(w, identity); err != nil {
		msg := "Unable to issue session credentials"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		h.reply(
			w,
			http.StatusInternalServerError,
			getStdRESTErrorMsg(http.StatusInternalServerError, &msg),
			restCall,
		)
		return
	}

	log.WithFields(localLogTags).Infof("Renewed session for %s", identity.Username)
	h.reply(
		w,
		http.StatusOK,
		sessionResponse{StandardResponse: getStdRESTSuccessMsg(), Identity: identity},
		restCall,
	)
}

// RefreshHandler Wrapper around Refresh
func (h APIRestAuthHandler) RefreshHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.Refresh(w, r)
	})
}

// Verify godoc
// @Summary Verify the access credential
// @Description Check the access cookie, returning the session owner's
// identity when it is valid.
// @tags Authen
// @Produce json
// @Success 200 {object} sessionResponse "success"
// @Failure 401 {object} StandardResponse "error"
// @Router /api/v1/authen/verify [post]
func (h APIRestAuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /api/v1/authen/verify"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	result := h.gate.Check(r, auth.AccessToken)
	switch result.Status {
	case auth.StatusOK:
		h.reply(
			w,
			http.StatusOK,
			sessionResponse{StandardResponse: getStdRESTSuccessMsg(), Identity: result.Identity},
			restCall,
		)
	case auth.StatusExpired:
		log.WithFields(localLogTags).Debugf(
			"Expired access credential from %s", result.Identity.Username,
		)
		h.replyUnauthorized(w, "Access credential expired", restCall)
	case auth.StatusMissing:
		h.replyUnauthorized(w, "No access credential provided", restCall)
	default:
		h.replyUnauthorized(w, "Access credential is not authentic", restCall)
	}
}

// VerifyHandler Wrapper around Verify
func (h APIRestAuthHandler) VerifyHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.Verify(w, r)
	})
}

// Logout godoc
// @Summary End the session
// @Description Delete both session cookies.
// @tags Authen
// @Produce json
// @Success 200 {object} StandardResponse "success"
// @Router /api/v1/authen/logout [post]
func (h APIRestAuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /api/v1/authen/logout"
	h.gate.ClearSessionCookies(w)
	h.reply(w, http.StatusOK, getStdRESTSuccessMsg(), restCall)
}

// LogoutHandler Wrapper around Logout
func (h APIRestAuthHandler) LogoutHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.Logout(w, r)
	})
}
