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
	"errors"
	"net/http"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/vulcanapp/vulcan/auth"
	"github.com/vulcanapp/vulcan/bridge"
	"github.com/vulcanapp/vulcan/broker"
	"github.com/vulcanapp/vulcan/common"
	"github.com/vulcanapp/vulcan/storage"
)

// APIRestDiaryHandler REST handler for diary management
type APIRestDiaryHandler struct {
	APIRestHandler
	gate     auth.SessionGate
	diaries  storage.DiaryStore
	producer broker.Publisher
	validate *validator.Validate
}

// GetAPIRestDiaryHandler define APIRestDiaryHandler
func GetAPIRestDiaryHandler(
	gate auth.SessionGate,
	diaries storage.DiaryStore,
	producer broker.Publisher,
	requestLogging common.HTTPRequestLogging,
) (APIRestDiaryHandler, error) {
	logTags := log.Fields{
		"module":    "apis",
		"component": "diary-handler",
	}
	return APIRestDiaryHandler{
		APIRestHandler: APIRestHandler{
			Component:   common.Component{LogTags: logTags},
			reqIDHeader: requestLogging.RequestIDHeader,
		},
		gate:     gate,
		diaries:  diaries,
		producer: producer,
		validate: validator.New(),
	}, nil
}

// checkRefresh gate a diary request on the refresh cookie. Mutations demand a
// live credential; reads also accept an expired-but-authentic one. On failure
// the 401 is already written.
func (h APIRestDiaryHandler) checkRefresh(
	w http.ResponseWriter, r *http.Request, allowExpired bool, restCall string,
) (auth.Identity, bool) {
	result := h.gate.Check(r, auth.RefreshToken)
	switch result.Status {
	case auth.StatusOK:
		return result.Identity, true
	case auth.StatusExpired:
		if allowExpired {
			return result.Identity, true
		}
		reason := "Refresh token expired"
		h.reply(
			w,
			http.StatusUnauthorized,
			getStdRESTErrorMsg(http.StatusUnauthorized, &reason),
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
	return auth.Identity{}, false
}

// replyDiaryError map storage failures to responses
func (h APIRestDiaryHandler) replyDiaryError(
	w http.ResponseWriter, err error, restCall string,
) {
	if errors.Is(err, storage.ErrDiaryNotFound) || errors.Is(err, storage.ErrNotDiaryCreator) {
		msg := "Diary not found"
		h.reply(w, http.StatusNotFound, getStdRESTErrorMsg(http.StatusNotFound, &msg), restCall)
		return
	}
	msg := "Unable to process diary request"
	h.reply(
		w,
		http.StatusInternalServerError,
		getStdRESTErrorMsg(http.StatusInternalServerError, &msg),
		restCall,
	)
}

// =======================================================================

// APIRestRespDiaryCreated response for creating a new diary
type APIRestRespDiaryCreated struct {
	StandardResponse
	ID string `json:"id"`
}

// CreateDiary godoc
// @Summary Create a new diary
// @Description Store a new diary for the session owner, then announce
// `new_diary_created` on the fan-out topic.
// @tags Diary
// @Accept json
// @Produce json
// @Param diary body storage.NewDiary true "New diary parameters"
// @Success 200 {object} APIRestRespDiaryCreated "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 401 {object} StandardResponse "error"
// @Router /api/v1/diary/ [post]
func (h APIRestDiaryHandler) CreateDiary(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /api/v1/diary/"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	user, ok := h.checkRefresh(w, r, false, restCall)
	if !ok {
		return
	}

	var params storage.NewDiary
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		h.reply(w, http.StatusBadRequest, getStdRESTErrorMsg(http.StatusBadRequest, &msg), restCall)
		return
	}

	newID, err := h.diaries.Add(r.Context(), params, user)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Unable to add diary")
		h.replyDiaryError(w, err, restCall)
		return
	}

	h.producer.Publish(r.Context(), bridge.FanoutTopic, bridge.EventDiaryCreated, newID, false)
	log.WithFields(localLogTags).Infof("Announced new diary %s", newID)

	h.reply(
		w,
		http.StatusOK,
		APIRestRespDiaryCreated{StandardResponse: getStdRESTSuccessMsg(), ID: newID},
		restCall,
	)
}

// CreateDiaryHandler Wrapper around CreateDiary
func (h APIRestDiaryHandler) CreateDiaryHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.CreateDiary(w, r)
	})
}

// =======================================================================

// APIRestRespOneDiary response carrying one diary
type APIRestRespOneDiary struct {
	StandardResponse
	Diary storage.Diary `json:"diary"`
}

// GetDiary godoc
// @Summary Fetch one of the session owner's diaries
// @tags Diary
// @Produce json
// @Param diaryID path string true "Diary ID"
// @Success 200 {object} APIRestRespOneDiary "success"
// @Failure 401 {object} StandardResponse "error"
// @Failure 404 {object} StandardResponse "error"
// @Router /api/v1/diary/id/{diaryID} [post]
func (h APIRestDiaryHandler) GetDiary(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /api/v1/diary/id/{diaryID}"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	user, ok := h.checkRefresh(w, r, true, restCall)
	if !ok {
		return
	}

	diaryID := mux.Vars(r)["diaryID"]
	diary, err := h.diaries.GetByID(r.Context(), diaryID, user)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Infof("Diary %s not readable", diaryID)
		h.replyDiaryError(w, err, restCall)
		return
	}

	h.reply(
		w,
		http.StatusOK,
		APIRestRespOneDiary{StandardResponse: getStdRESTSuccessMsg(), Diary: diary},
		restCall,
	)
}

// GetDiaryHandler Wrapper around GetDiary
func (h APIRestDiaryHandler) GetDiaryHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.GetDiary(w, r)
	})
}

// =======================================================================

// APIRestRespDiaryList response carrying a diary listing
type APIRestRespDiaryList struct {
	StandardResponse
	Diaries []storage.Diary `json:"diaries"`
	Count   int             `json:"count"`
}

// listReply write a diary listing response
func (h APIRestDiaryHandler) listReply(
	w http.ResponseWriter, diaries []storage.Diary, count int, restCall string,
) {
	h.reply(
		w,
		http.StatusOK,
		APIRestRespDiaryList{
			StandardResponse: getStdRESTSuccessMsg(), Diaries: diaries, Count: count,
		},
		restCall,
	)
}

// MyPrivateDiaries godoc
// @Summary List the session owner's unpublished diaries
// @tags Diary
// @Produce json
// @Success 200 {object} APIRestRespDiaryList "success"
// @Failure 401 {object} StandardResponse "error"
// @Router /api/v1/diary/my_private [post]
func (h APIRestDiaryHandler) MyPrivateDiaries(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /api/v1/diary/my_private"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	user, ok := h.checkRefresh(w, r, true, restCall)
	if !ok {
		return
	}

	diaries, count, err := h.diaries.GetPrivate(r.Context(), user)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Private diary listing failed")
		h.replyDiaryError(w, err, restCall)
		return
	}
	h.listReply(w, diaries, count, restCall)
}

// MyPrivateDiariesHandler Wrapper around MyPrivateDiaries
func (h APIRestDiaryHandler) MyPrivateDiariesHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.MyPrivateDiaries(w, r)
	})
}

// MyPublishedDiaries godoc
// @Summary List the session owner's published diaries
// @tags Diary
// @Produce json
// @Success 200 {object} APIRestRespDiaryList "success"
// @Failure 401 {object} StandardResponse "error"
// @Router /api/v1/diary/my_published [post]
func (h APIRestDiaryHandler) MyPublishedDiaries(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /api/v1/diary/my_published"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	user, ok := h.checkRefresh(w, r, true, restCall)
	if !ok {
		return
	}

	diaries, count, err := h.diaries.GetPublished(r.Context(), user)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Published diary listing failed")
		h.replyDiaryError(w, err, restCall)
		return
	}
	h.listReply(w, diaries, count, restCall)
}

// MyPublishedDiariesHandler Wrapper around MyPublishedDiaries
func (h APIRestDiaryHandler) MyPublishedDiariesHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.MyPublishedDiaries(w, r)
	})
}

// PublicDiaries godoc
// @Summary List published diaries of a team
// @Description The team name "all" lists published diaries across teams.
// @tags Diary
// @Produce json
// @Param team path string true "Team name, or 'all'"
// @Success 200 {object} APIRestRespDiaryList "success"
// @Failure 401 {object} StandardResponse "error"
// @Router /api/v1/diary/publics/{team} [post]
func (h APIRestDiaryHandler) PublicDiaries(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /api/v1/diary/publics/{team}"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	if _, ok := h.checkRefresh(w, r, true, restCall); !ok {
		return
	}

	team := mux.Vars(r)["team"]
	diaries, count, err := h.diaries.GetPublic(r.Context(), team)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Public diary listing for %s failed", team,
		)
		h.replyDiaryError(w, err, restCall)
		return
	}
	h.listReply(w, diaries, count, restCall)
}

// PublicDiariesHandler Wrapper around PublicDiaries
func (h APIRestDiaryHandler) PublicDiariesHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.PublicDiaries(w, r)
	})
}

// =======================================================================

// UpdateDiary godoc
// @Summary Update a diary
// @Description Apply a partial update to a diary the session owner created,
// then announce `diary_id_updated` on the fan-out topic.
// @tags Diary
// @Accept json
// @Produce json
// @Param diaryID path string true "Diary ID"
// @Param changes body storage.EditedDiary true "Diary changes"
// @Success 200 {object} StandardResponse "success"
// @Failure 401 {object} StandardResponse "error"
// @Failure 404 {object} StandardResponse "error"
// @Router /api/v1/diary/id/{diaryID} [put]
func (h APIRestDiaryHandler) UpdateDiary(w http.ResponseWriter, r *http.Request) {
	restCall := "PUT /api/v1/diary/id/{diaryID}"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	user, ok := h.checkRefresh(w, r, false, restCall)
	if !ok {
		return
	}

	var params storage.EditedDiary
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		h.reply(w, http.StatusBadRequest, getStdRESTErrorMsg(http.StatusBadRequest, &msg), restCall)
		return
	}

	diaryID := mux.Vars(r)["diaryID"]
	updated, err := h.diaries.Update(r.Context(), diaryID, user, params)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Infof("Diary %s not updatable", diaryID)
		h.replyDiaryError(w, err, restCall)
		return
	}
	if !updated {
		msg := "Diary not found or not updated"
		h.reply(w, http.StatusNotFound, getStdRESTErrorMsg(http.StatusNotFound, &msg), restCall)
		return
	}

	h.producer.Publish(r.Context(), bridge.FanoutTopic, bridge.EventDiaryUpdated, diaryID, false)
	log.WithFields(localLogTags).Infof("Announced update of diary %s", diaryID)
	h.reply(w, http.StatusOK, getStdRESTSuccessMsg(), restCall)
}

// UpdateDiaryHandler Wrapper around UpdateDiary
func (h APIRestDiaryHandler) UpdateDiaryHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.UpdateDiary(w, r)
	})
}

// =======================================================================

// DeleteDiary godoc
// @Summary Delete a diary
// @Description Delete a diary the session owner created, then announce
// `diary_id_deleted` on the fan-out topic.
// @tags Diary
// @Produce json
// @Param diaryID path string true "Diary ID"
// @Success 200 {object} StandardResponse "success"
// @Failure 401 {object} StandardResponse "error"
// @Failure 404 {object} StandardResponse "error"
// @Router /api/v1/diary/id/{diaryID} [delete]
func (h APIRestDiaryHandler) DeleteDiary(w http.ResponseWriter, r *http.Request) {
	restCall := "DELETE /api/v1/diary/id/{diaryID}"
	localLogTags, _ := common.UpdateLogTags(r.Context(), h.LogTags)

	user, ok := h.checkRefresh(w, r, false, restCall)
	if !ok {
		return
	}

	diaryID := mux.Vars(r)["diaryID"]
	deleted, err := h.diaries.Delete(r.Context(), diaryID, user)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Infof("Diary %s not deletable", diaryID)
		h.replyDiaryError(w, err, restCall)
		return
	}
	if !deleted {
		msg := "Diary not found or not deleted"
		h.reply(w, http.StatusNotFound, getStdRESTErrorMsg(http.StatusNotFound, &msg), restCall)
		return
	}

	h.producer.Publish(r.Context(), bridge.FanoutTopic, bridge.EventDiaryDeleted, diaryID, false)
	log.WithFields(localLogTags).Infof("Announced deletion of diary %s", diaryID)
	h.reply(w, http.StatusOK, getStdRESTSuccessMsg(), restCall)
}

// DeleteDiaryHandler Wrapper around DeleteDiary
func (h APIRestDiaryHandler) DeleteDiaryHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.DeleteDiary(w, r)
	})
}
