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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/vulcanapp/vulcan/auth"
	"github.com/vulcanapp/vulcan/common"
	"github.com/vulcanapp/vulcan/notify"
	"github.com/vulcanapp/vulcan/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// sentNotification one captured notification relay call
type sentNotification struct {
	topic   string
	payload notify.Payload
}

// recordingNotifier test double capturing notification sends.
//
// Register delivers notifications from a background goroutine, so captures go
// through a channel instead of a shared slice.
type recordingNotifier struct {
	sent chan sentNotification
}

func (n *recordingNotifier) Send(
	ctxt context.Context, topic string, payload notify.Payload,
) error {
	n.sent <- sentNotification{topic: topic, payload: payload}
	return nil
}

func defineUserTestFixtures(t *testing.T) (
	auth.TokenIssuer,
	auth.SessionGate,
	*fixedUserStore,
	*recordingNotifier,
	APIRestUserHandler,
) {
	assert := assert.New(t)
	issuer, err := auth.GetTokenIssuer(
		"unit-test-secret", time.Hour, time.Hour*2, "ut-user-handler",
	)
	assert.Nil(err)
	gate, err := auth.GetSessionGate("testapp", issuer)
	assert.Nil(err)
	users := &fixedUserStore{
		account: storage.User{
			ID:          primitive.NewObjectID(),
			Username:    "unit-tester",
			Email:       "unit-tester@testing.dev",
			UserType:    storage.UserTypeClient,
			MemberSince: time.Now().UTC(),
			Activated:   true,
		},
		password: "super-secret",
	}
	notifier := &recordingNotifier{sent: make(chan sentNotification, 4)}
	uut, err := GetAPIRestUserHandler(gate, users, notifier, common.HTTPRequestLogging{})
	assert.Nil(err)
	return issuer, gate, users, notifier, uut
}

func attachAccessCookie(
	t *testing.T,
	request *http.Request,
	issuer auth.TokenIssuer,
	gate auth.SessionGate,
	identity auth.Identity,
	ttl time.Duration,
) {
	assert := assert.New(t)
	credential, err := issuer.Issue(identity, ttl)
	assert.Nil(err)
	request.AddCookie(&http.Cookie{
		Name: gate.CookieName(auth.AccessToken), Value: credential,
	})
}

func TestUserHandlerRegister(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	_, _, users, notifier, uut := defineUserTestFixtures(t)

	// Case 1: registration succeeds and fires an activation notification
	{
		body, err := json.Marshal(storage.NewUser{
			Username:        "New-Tester",
			Email:           "New-Tester@Testing.DEV",
			Password:        "brand new secret",
			ConfirmPassword: "brand new secret",
		})
		assert.Nil(err)
		request := httptest.NewRequest("POST", "/api/v1/user", bytes.NewReader(body))
		recorder := httptest.NewRecorder()
		uut.RegisterHandler()(recorder, request)
		assert.Equal(http.StatusCreated, recorder.Code)

		var response APIRestRespRegisteredUser
		assert.Nil(json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.True(response.Success)
		assert.Equal(users.account.ID.Hex(), response.UserID)

		// The activation notification is delivered in the background with the
		// normalized address
		select {
		case notification := <-notifier.sent:
			assert.Equal(notify.TopicActivation, notification.topic)
			assert.Equal("new-tester@testing.dev", notification.payload.Email)
			assert.Equal("new-tester", notification.payload.Username)
		case <-time.After(time.Second):
			assert.FailNow("activation notification never sent")
		}
	}

	// Case 2: an already taken username is a conflict
	{
		body, err := json.Marshal(storage.NewUser{
			Username:        "Unit-Tester",
			Email:           "somewhere-else@testing.dev",
			Password:        "pw0pw0pw",
			ConfirmPassword: "pw0pw0pw",
		})
		assert.Nil(err)
		request := httptest.NewRequest("POST", "/api/v1/user", bytes.NewReader(body))
		recorder := httptest.NewRecorder()
		uut.RegisterHandler()(recorder, request)
		assert.Equal(http.StatusConflict, recorder.Code)
	}

	// Case 3: an already taken email is a conflict
	{
		body, err := json.Marshal(storage.NewUser{
			Username:        "someone-else",
			Email:           "Unit-Tester@Testing.dev",
			Password:        "pw0pw0pw",
			ConfirmPassword: "pw0pw0pw",
		})
		assert.Nil(err)
		request := httptest.NewRequest("POST", "/api/v1/user", bytes.NewReader(body))
		recorder := httptest.NewRecorder()
		uut.RegisterHandler()(recorder, request)
		assert.Equal(http.StatusConflict, recorder.Code)
	}

	// Case 4: mismatched password confirmation is a client error
	{
		body, err := json.Marshal(storage.NewUser{
			Username:        "typo-tester",
			Email:           "typo-tester@testing.dev",
			Password:        "one secret",
			ConfirmPassword: "another secret",
		})
		assert.Nil(err)
		request := httptest.NewRequest("POST", "/api/v1/user", bytes.NewReader(body))
		recorder := httptest.NewRecorder()
		uut.RegisterHandler()(recorder, request)
		assert.Equal(http.StatusBadRequest, recorder.Code)
	}
}

func TestUserHandlerCurrentUser(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	issuer, gate, users, _, uut := defineUserTestFixtures(t)
	identity := users.account.Identity()

	// Case 1: live refresh cookie names the session owner
	{
		credential, err := issuer.Issue(identity, time.Hour)
		assert.Nil(err)
		request := httptest.NewRequest("POST", "/api/v1/current_user", nil)
		request.AddCookie(&http.Cookie{
			Name: gate.CookieName(auth.RefreshToken), Value: credential,
		})
		recorder := httptest.NewRecorder()
		uut.CurrentUserHandler()(recorder, request)
		assert.Equal(http.StatusOK, recorder.Code)

		var response sessionResponse
		assert.Nil(json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Equal(identity.Username, response.Identity.Username)
	}

	// Case 2: an expired-but-authentic refresh cookie is still accepted
	{
		credential, err := issuer.Issue(identity, -time.Minute)
		assert.Nil(err)
		request := httptest.NewRequest("POST", "/api/v1/current_user", nil)
		request.AddCookie(&http.Cookie{
			Name: gate.CookieName(auth.RefreshToken), Value: credential,
		})
		recorder := httptest.NewRecorder()
		uut.CurrentUserHandler()(recorder, request)
		assert.Equal(http.StatusOK, recorder.Code)
	}

	// Case 3: no cookie is an auth failure
	{
		request := httptest.NewRequest("POST", "/api/v1/current_user", nil)
		recorder := httptest.NewRecorder()
		uut.CurrentUserHandler()(recorder, request)
		assert.Equal(http.StatusUnauthorized, recorder.Code)
	}
}

func TestUserHandlerAdminGating(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	issuer, gate, users, _, uut := defineUserTestFixtures(t)
	client := users.account.Identity()
	admin := auth.Identity{
		ID:        primitive.NewObjectID().Hex(),
		Username:  "site-admin",
		Email:     "admin@testing.dev",
		UserType:  storage.UserTypeAdmin,
		Activated: true,
	}

	// Case 1: a client credential can not search accounts
	{
		request := httptest.NewRequest(
			"GET", "/api/v1/users?search_criteria=username&search_value=unit-tester&order=asc", nil,
		)
		attachAccessCookie(t, request, issuer, gate, client, time.Hour)
		recorder := httptest.NewRecorder()
		uut.GetUsersHandler()(recorder, request)
		assert.Equal(http.StatusUnauthorized, recorder.Code)
	}

	// Case 2: an expired admin credential is also rejected
	{
		request := httptest.NewRequest(
			"GET", "/api/v1/users?search_criteria=username&search_value=unit-tester&order=asc", nil,
		)
		attachAccessCookie(t, request, issuer, gate, admin, -time.Minute)
		recorder := httptest.NewRecorder()
		uut.GetUsersHandler()(recorder, request)
		assert.Equal(http.StatusUnauthorized, recorder.Code)
	}

	// Case 3: an admin search by username finds the account
	{
		request := httptest.NewRequest(
			"GET", "/api/v1/users?search_criteria=username&search_value=unit-tester&order=asc", nil,
		)
		attachAccessCookie(t, request, issuer, gate, admin, time.Hour)
		recorder := httptest.NewRecorder()
		uut.GetUsersHandler()(recorder, request)
		assert.Equal(http.StatusOK, recorder.Code)

		var response APIRestRespUsers
		assert.Nil(json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Len(response.Users, 1)
		assert.Equal(users.account.Username, response.Users[0].Username)
	}

	// Case 4: an unsupported search criteria is a client error
	{
		request := httptest.NewRequest(
			"GET", "/api/v1/users?search_criteria=hashpwd&search_value=x&order=asc", nil,
		)
		attachAccessCookie(t, request, issuer, gate, admin, time.Hour)
		recorder := httptest.NewRecorder()
		uut.GetUsersHandler()(recorder, request)
		assert.Equal(http.StatusBadRequest, recorder.Code)
	}

	// Case 5: account deletion is admin only, keyed by user_id
	{
		request := httptest.NewRequest(
			"DELETE", "/api/v1/user?user_id="+users.account.ID.Hex(), nil,
		)
		attachAccessCookie(t, request, issuer, gate, admin, time.Hour)
		recorder := httptest.NewRecorder()
		uut.DeleteUserHandler()(recorder, request)
		assert.Equal(http.StatusOK, recorder.Code)

		request = httptest.NewRequest(
			"DELETE", "/api/v1/user?user_id="+primitive.NewObjectID().Hex(), nil,
		)
		attachAccessCookie(t, request, issuer, gate, admin, time.Hour)
		recorder = httptest.NewRecorder()
		uut.DeleteUserHandler()(recorder, request)
		assert.Equal(http.StatusNotFound, recorder.Code)
	}
}

func TestUserHandlerUpdate(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	issuer, gate, users, _, uut := defineUserTestFixtures(t)
	identity := users.account.Identity()

	// Case 1: an active user updates their own account
	{
		newEmail := "Renamed@Testing.DEV"
		body, err := json.Marshal(storage.EditedUser{Email: &newEmail})
		assert.Nil(err)
		request := httptest.NewRequest("PATCH", "/api/v1/user", bytes.NewReader(body))
		attachAccessCookie(t, request, issuer, gate, identity, time.Hour)
		recorder := httptest.NewRecorder()
		uut.UpdateUserHandler()(recorder, request)
		assert.Equal(http.StatusOK, recorder.Code)
	}

	// Case 2: an inactive non-admin account is blocked
	{
		inactive := identity
		inactive.Activated = false
		body, err := json.Marshal(storage.EditedUser{})
		assert.Nil(err)
		request := httptest.NewRequest("PATCH", "/api/v1/user", bytes.NewReader(body))
		attachAccessCookie(t, request, issuer, gate, inactive, time.Hour)
		recorder := httptest.NewRecorder()
		uut.UpdateUserHandler()(recorder, request)
		assert.Equal(http.StatusForbidden, recorder.Code)
	}

	// Case 3: no access cookie is an auth failure
	{
		body, err := json.Marshal(storage.EditedUser{})
		assert.Nil(err)
		request := httptest.NewRequest("PATCH", "/api/v1/user", bytes.NewReader(body))
		recorder := httptest.NewRecorder()
		uut.UpdateUserHandler()(recorder, request)
		assert.Equal(http.StatusUnauthorized, recorder.Code)
	}
}
