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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/vulcanapp/vulcan/auth"
	"github.com/vulcanapp/vulcan/common"
	"github.com/vulcanapp/vulcan/notify"
	"github.com/vulcanapp/vulcan/storage"
)

// APIRestUserHandler REST handler for account management
type APIRestUserHandler struct {
	APIRestHandler
	gate     auth.SessionGate
	users    storage.UserStore
	notifier notify.Client
	validate *validator.Validate
}

// GetAPIRestUserHandler define APIRestUserHandler
func GetAPIRestUserHandler(
	gate auth.SessionGate,
	users storage.UserStore,
	notifier notify.Client,
	requestLogging common.HTTPRequestLogging,
) (APIRestUserHandler, error) {
	logTags := log.Fields{
		"module":    "apis",
		"component": "user-handler",
	}
	return APIRestUserHandler{
		APIRestHandler: APIRestHandler{
			Component:   common.Component{LogTags: logTags},
			reqIDHeader: requestLogging.RequestIDHeader,
		},
		gate:     gate,
		users:    users,
		notifier: notifier,
		validate: validator.New(),
	}, nil
}

// normalizeEmail lower-case the local and domain parts of an email address
func normalizeEmail(email string) string {
	return strings.ToLower(email)
}

// checkAdmin verify the access cookie names an admin account. Returns the
// identity and true on success; on failure the 401 is already written.
func (h APIRestUserHandler) checkAdmin(
	w http.ResponseWriter, r *http.Request, restCall string,
) (auth.Identity, bool) {
	result := h.gate.Check(r, auth.AccessToken)
	if result.Status != auth.StatusOK {
		reason := fmt.Sprintf("Access credential %s", result.Status)
		h.reply(
			w,
			http.StatusUnauthorized,
			getStdRESTErrorMsg(http.StatusUnauthorized, &reason),
			restCall,
		)
		return auth.Identity{}, false
	}
	if result.Identity.UserType != storage.UserTypeAdmin {
		log.WithFields(h.LogTags).Infof(
			"Non-admin user %s attempted admin access", result.Identity.Username,
		)
		reason := "Not an admin"
		h.reply(
			w,
			http.StatusUnauthorized,
			getStdRESTErrorMsg(http.StatusUnauthorized, &reason),
			restCall,
		)
		return auth.Identity{}, false
	}
	return result.Identity, true
}

// checkActiveUser verify the access cookie names an activated account
func (h APIRestUserHandler) checkActiveUser(
	w http.ResponseWriter, r *http.Request, restCall string,
) (auth.Identity, bool) {
	result := h.gate.Check(r, auth.AccessToken)
	if result.Status != auth.StatusOK {
		reason := fmt.Sprintf("Access credential %s", result.Status)
		h.reply(
			w,
			http.StatusUnauthorized,
			getStdRESTErrorMsg(http.StatusUnauthorized, &reason),
			restCall,
		)
		return auth.Identity{}, false
	}
	if !result.Identity.Activated && result.Identity.UserType != storage.UserTypeAdmin {
		log.WithFields(h.LogTags).Infof(
			"Inactive user %s attempted access", result.Identity.Username,
		)
		reason := "Inactive user"
		h.reply(
			w,
			http.StatusForbidden,
			getStdRESTErrorMsg(http.StatusForbidden, &reason),
			restCall,
		)
		return auth.Identity{}, false
	}
	return result.Identity, true
}

// =======================================================================

// APIRestRespRegisteredUser response for registering a new account
type APIRestRespRegisteredUser struct {
	StandardResponse
	UserID string `json:"user_id"`
}

// Register godoc
// @Summary Register a new account
// @Description Create a new client account. The username and email are
// normalized to lower-case, and an activation notification is sent in the
// background.
// @tags User
// @Accept json
// @Produce json
// @Param account body storage.NewUser true "New account parameters"
// @Success 201 {object} APIRestRespRegisteredUser "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 409 {object} StandardResponse "error"
// @Failure 500 {object} StandardResponse "error"
// @Router /api/v1/user [post]
func (h APIRestUserHandler) Register(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /api/v1/user"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	var params storage.NewUser
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		h.reply(w, http.StatusBadRequest, getStdRESTErrorMsg(http.StatusBadRequest, &msg), restCall)
		return
	}
	if err := h.validate.Struct(&params); err != nil {
		msg := "Registration parameters are invalid"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		h.reply(w, http.StatusBadRequest, getStdRESTErrorMsg(http.StatusBadRequest, &msg), restCall)
		return
	}
	params.Username = strings.ToLower(params.Username)
	params.Email = normalizeEmail(params.Email)

	if dup, err := h.users.GetUsers(
		r.Context(), "username", params.Username, "asc",
	); err == nil && len(dup) > 0 {
		msg := fmt.Sprintf("Username already exists: %s", params.Username)
		log.WithFields(localLogTags).Info(msg)
		h.reply(w, http.StatusConflict, getStdRESTErrorMsg(http.StatusConflict, &msg), restCall)
		return
	}
	if dup, err := h.users.GetUsers(
		r.Context(), "email", params.Email, "asc",
	); err == nil && len(dup) > 0 {
		msg := fmt.Sprintf("Email already exists: %s", params.Email)
		log.WithFields(localLogTags).Info(msg)
		h.reply(w, http.StatusConflict, getStdRESTErrorMsg(http.StatusConflict, &msg), restCall)
		return
	}

	userID, err := h.users.Register(r.Context(), params, storage.UserTypeClient)
	if err != nil {
		msg := "Failed to register user"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		h.reply(
			w,
			http.StatusInternalServerError,
			getStdRESTErrorMsg(http.StatusInternalServerError, &msg),
			restCall,
		)
		return
	}

	// Activation email delivery must not hold up the registration response
	go func() {
		ctxt, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		payload := notify.Payload{
			Email:    params.Email,
			Username: params.Username,
			Subject:  "Activate your account",
			Body:     fmt.Sprintf("Welcome %s, please activate your account.", params.Username),
		}
		if err := h.notifier.Send(ctxt, notify.TopicActivation, payload); err != nil {
			log.WithError(err).WithFields(h.LogTags).Warnf(
				"Activation notification for %s failed", params.Username,
			)
		}
	}()

	log.WithFields(localLogTags).Infof("Registered user %s", params.Username)
	h.reply(
		w,
		http.StatusCreated,
		APIRestRespRegisteredUser{StandardResponse: getStdRESTSuccessMsg(), UserID: userID},
		restCall,
	)
}

// RegisterHandler Wrapper around Register
func (h APIRestUserHandler) RegisterHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.Register(w, r)
	})
}

// =======================================================================

// CurrentUser godoc
// @Summary Fetch the current session owner
// @Description Decode the refresh cookie and return the identity it names.
// @tags User
// @Produce json
// @Success 200 {object} sessionResponse "success"
// @Failure 401 {object} StandardResponse "error"
// @Router /api/v1/current_user [post]
func (h APIRestUserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /api/v1/current_user"

	result := h.gate.Check(r, auth.RefreshToken)
	switch result.Status {
	case auth.StatusOK, auth.StatusExpired:
		h.reply(
			w,
			http.StatusOK,
			sessionResponse{StandardResponse: getStdRESTSuccessMsg(), Identity: result.Identity},
			restCall,
		)
	case auth.StatusMissing:
		reason := "Missing refresh token"
		h.reply(
			w,
			http.StatusUnauthorized,
			getStdRESTErrorMsg(http.StatusUnauthorized, &reason),
			restCall,
		)
	default:
		reason := "Invalid refresh token"
		h.reply(
			w,
			http.StatusUnauthorized,
			getStdRESTErrorMsg(http.StatusUnauthorized, &reason),
			restCall,
		)
	}
}

// CurrentUserHandler Wrapper around CurrentUser
func (h APIRestUserHandler) CurrentUserHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.CurrentUser(w, r)
	})
}

// =======================================================================

// APIRestRespUsers response carrying a list of accounts
type APIRestRespUsers struct {
	StandardResponse
	Users []storage.User `json:"data"`
}

// GetUsers godoc
// @Summary Search accounts
// @Description Admin only. Search accounts by username or email, sorted by
// the search criteria.
// @tags User
// @Produce json
// @Param search_criteria query string true "Criteria to search by: 'username' or 'email'"
// @Param search_value query string true "Value to search for"
// @Param order query string true "Sort order: 'asc' or 'desc'"
// @Success 200 {object} APIRestRespUsers "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 401 {object} StandardResponse "error"
// @Router /api/v1/users [get]
func (h APIRestUserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /api/v1/users"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	if _, ok := h.checkAdmin(w, r, restCall); !ok {
		return
	}

	criteria := r.URL.Query().Get("search_criteria")
	value := r.URL.Query().Get("search_value")
	order := strings.ToLower(r.URL.Query().Get("order"))
	if criteria != "username" && criteria != "email" {
		msg := "Invalid search criteria. Must be 'username' or 'email'."
		h.reply(w, http.StatusBadRequest, getStdRESTErrorMsg(http.StatusBadRequest, &msg), restCall)
		return
	}
	if order != "asc" && order != "desc" {
		msg := "Invalid sort order. Must be 'asc' or 'desc'."
		h.reply(w, http.StatusBadRequest, getStdRESTErrorMsg(http.StatusBadRequest, &msg), restCall)
		return
	}

	users, err := h.users.GetUsers(r.Context(), criteria, value, order)
	if err != nil {
		msg := "Unable to search accounts"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		h.reply(
			w,
			http.StatusInternalServerError,
			getStdRESTErrorMsg(http.StatusInternalServerError, &msg),
			restCall,
		)
		return
	}

	h.reply(
		w,
		http.StatusOK,
		APIRestRespUsers{StandardResponse: getStdRESTSuccessMsg(), Users: users},
		restCall,
	)
}

// GetUsersHandler Wrapper around GetUsers
func (h APIRestUserHandler) GetUsersHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.GetUsers(w, r)
	})
}

// =======================================================================

// APIRestRespOneUser response carrying one account
type APIRestRespOneUser struct {
	StandardResponse
	User storage.User `json:"data"`
}

// GetUser godoc
// @Summary Fetch one account by ID
// @Description Admin only.
// @tags User
// @Produce json
// @Param userID path string true "Account ID"
// @Success 200 {object} APIRestRespOneUser "success"
// @Failure 401 {object} StandardResponse "error"
// @Failure 404 {object} StandardResponse "error"
// @Router /api/v1/user/{userID} [get]
func (h APIRestUserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /api/v1/user/{userID}"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	if _, ok := h.checkAdmin(w, r, restCall); !ok {
		return
	}

	userID := mux.Vars(r)["userID"]
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		msg := "User not found"
		log.WithError(err).WithFields(localLogTags).Infof("User %s not found", userID)
		h.reply(w, http.StatusNotFound, getStdRESTErrorMsg(http.StatusNotFound, &msg), restCall)
		return
	}

	h.reply(
		w,
		http.StatusOK,
		APIRestRespOneUser{StandardResponse: getStdRESTSuccessMsg(), User: user},
		restCall,
	)
}

// GetUserHandler Wrapper around GetUser
func (h APIRestUserHandler) GetUserHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.GetUser(w, r)
	})
}

// =======================================================================

// UpdateUser godoc
// @Summary Update the current account
// @Description Apply a partial update to the session owner's own account.
// @tags User
// @Accept json
// @Produce json
// @Param changes body storage.EditedUser true "Account changes"
// @Success 200 {object} StandardResponse "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 401 {object} StandardResponse "error"
// @Failure 403 {object} StandardResponse "error"
// @Router /api/v1/user [patch]
func (h APIRestUserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	restCall := "PATCH /api/v1/user"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	identity, ok := h.checkActiveUser(w, r, restCall)
	if !ok {
		return
	}

	var params storage.EditedUser
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		h.reply(w, http.StatusBadRequest, getStdRESTErrorMsg(http.StatusBadRequest, &msg), restCall)
		return
	}
	if params.Email != nil {
		normalized := normalizeEmail(*params.Email)
		params.Email = &normalized
	}
	if params.Username != nil {
		lowered := strings.ToLower(*params.Username)
		params.Username = &lowered
	}

	updated, err := h.users.Update(r.Context(), identity.ID, params)
	if err != nil || !updated {
		msg := "Failed to update user"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		h.reply(
			w,
			http.StatusInternalServerError,
			getStdRESTErrorMsg(http.StatusInternalServerError, &msg),
			restCall,
		)
		return
	}

	log.WithFields(localLogTags).Infof("Updated account of %s", identity.Username)
	h.reply(w, http.StatusOK, getStdRESTSuccessMsg(), restCall)
}

// UpdateUserHandler Wrapper around UpdateUser
func (h APIRestUserHandler) UpdateUserHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.UpdateUser(w, r)
	})
}

// =======================================================================

// DeleteUser godoc
// @Summary Delete an account
// @Description Admin only. Delete the account named by the user_id query
// parameter.
// @tags User
// @Produce json
// @Param user_id query string true "Account ID"
// @Success 200 {object} StandardResponse "success"
// @Failure 401 {object} StandardResponse "error"
// @Failure 404 {object} StandardResponse "error"
// @Router /api/v1/user [delete]
func (h APIRestUserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	restCall := "DELETE /api/v1/user"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	admin, ok := h.checkAdmin(w, r, restCall)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	deleted, err := h.users.Delete(r.Context(), userID)
	if err != nil || !deleted {
		msg := "User not found"
		log.WithError(err).WithFields(localLogTags).Infof("User %s not found", userID)
		h.reply(w, http.StatusNotFound, getStdRESTErrorMsg(http.StatusNotFound, &msg), restCall)
		return
	}

	log.WithFields(localLogTags).Infof("Admin %s deleted user %s", admin.Username, userID)
	h.reply(w, http.StatusOK, getStdRESTSuccessMsg(), restCall)
}

// DeleteUserHandler Wrapper around DeleteUser
func (h APIRestUserHandler) DeleteUserHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.DeleteUser(w, r)
	})
}
