package storage

import (
	"context"
	"errors"
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/vulcanapp/vulcan/auth"
	"github.com/vulcanapp/vulcan/common"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Diary query failure classes
var (
	// ErrDiaryNotFound no diary matches the query
	ErrDiaryNotFound = errors.New("diary not found")
	// ErrNotDiaryCreator the caller does not own the diary
	ErrNotDiaryCreator = errors.New("user is not the diary creator")
)

// EditorBlock one block of editor content
type EditorBlock struct {
	ID   string                 `bson:"id" json:"id"`
	Type string                 `bson:"type" json:"type"`
	Data map[string]interface{} `bson:"data" json:"data"`
}

// EditorContent the editor document carried by a diary
type EditorContent struct {
	Time    int64         `bson:"time" json:"time"`
	Blocks  []EditorBlock `bson:"blocks" json:"blocks"`
	Version string        `bson:"version" json:"version"`
}

// Creator the diary owner reference embedded in each diary
type Creator struct {
	ID       string `bson:"id" json:"id"`
	Username string `bson:"username" json:"username"`
}

// NewDiary creation request parameters
type NewDiary struct {
	Content   EditorContent `json:"content" validate:"required"`
	Published bool          `json:"published"`
	Team      string        `json:"team" validate:"required"`
}

// EditedDiary partial diary update parameters
type EditedDiary struct {
	Content   *EditorContent `json:"content,omitempty"`
	Published *bool          `json:"published,omitempty"`
}

// Diary one stored diary
type Diary struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Content      EditorContent      `bson:"content" json:"content"`
	Published    bool               `bson:"published" json:"published"`
	Team         string             `bson:"team" json:"team"`
	Creator      Creator            `bson:"creator" json:"creator"`
	CreatedStamp time.Time          `bson:"created_stamp" json:"created_stamp"`
}

// DiaryStore manage the diaries collection
type DiaryStore interface {
	// Add store a new diary for a user; returns the new diary's ID
	Add(ctxt context.Context, newDiary NewDiary, creator auth.Identity) (string, error)
	// GetByID fetch one diary owned by the user
	GetByID(ctxt context.Context, diaryID string, user auth.Identity) (Diary, error)
	// GetPrivate fetch the user's unpublished diaries, newest first
	GetPrivate(ctxt context.Context, user auth.Identity) ([]Diary, int, error)
	// GetPublished fetch the user's published diaries, newest first
	GetPublished(ctxt context.Context, user auth.Identity) ([]Diary, int, error)
	// GetPublic fetch all published diaries, optionally filtered by team
	GetPublic(ctxt context.Context, team string) ([]Diary, int, error)
	// Update apply a partial update to a diary the user owns
	Update(ctxt context.Context, diaryID string, user auth.Identity, edited EditedDiary) (bool, error)
	// Delete remove a diary the user owns
	Delete(ctxt context.Context, diaryID string, user auth.Identity) (bool, error)
}

// diaryStoreImpl implements DiaryStore
type diaryStoreImpl struct {
	common.Component
	diaries  *mongo.Collection
	validate *validator.Validate
}

// GetDiaryStore define a DiaryStore over the diaries collection
func GetDiaryStore(ctxt context.Context, client MongoClient) (DiaryStore, error) {
	logTags := log.Fields{
		"module":    "storage",
		"component": "diary-store",
	}
	diaries := client.DB().Collection("diaries")
	_, err := diaries.Indexes().CreateOne(ctxt, mongo.IndexModel{
		Keys: bson.D{{Key: "creator.id", Value: 1}},
	})
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to ensure diary indexes")
		return nil, err
	}
	return &diaryStoreImpl{
		Component: common.Component{LogTags: logTags},
		diaries:   diaries,
		validate:  validator.New(),
	}, nil
}

// Add store a new diary for a user
func (s *diaryStoreImpl) Add(
	ctxt context.Context, newDiary NewDiary, creator auth.Identity,
) (string, error) {
	if err := s.validate.Struct(&newDiary); err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Invalid new diary")
		return "", err
	}
	record := Diary{
		Content:      newDiary.Content,
		Published:    newDiary.Published,
		Team:         newDiary.Team,
		Creator:      Creator{ID: creator.ID, Username: creator.Username},
		CreatedStamp: time.Now().UTC(),
	}
	result, err := s.diaries.InsertOne(ctxt, record)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Unable to add diary for %s", creator.Username,
		)
		return "", err
	}
	newID := result.InsertedID.(primitive.ObjectID).Hex()
	log.WithFields(s.LogTags).Infof("Added diary %s for %s", newID, creator.Username)
	return newID, nil
}

// verifyRightToModify whether the user created the referenced diary
func (s *diaryStoreImpl) verifyRightToModify(
	ctxt context.Context, diaryID string, user auth.Identity,
) (primitive.ObjectID, error) {
	objectID, err := primitive.ObjectIDFromHex(diaryID)
	if err != nil {
		return primitive.NilObjectID, ErrDiaryNotFound
	}
	var record Diary
	if err := s.diaries.FindOne(ctxt, bson.M{"_id": objectID}).Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return primitive.NilObjectID, ErrDiaryNotFound
		}
		log.WithError(err).WithFields(s.LogTags).Errorf("Diary %s lookup failed", diaryID)
		return primitive.NilObjectID, err
	}
	if record.Creator.ID != user.ID {
		log.WithFields(s.LogTags).Warnf(
			"User %s is not the creator of diary %s", user.Username, diaryID,
		)
		return primitive.NilObjectID, ErrNotDiaryCreator
	}
	return objectID, nil
}

// GetByID fetch one diary owned by the user
func (s *diaryStoreImpl) GetByID(
	ctxt context.Context, diaryID string, user auth.Identity,
) (Diary, error) {
	objectID, err := s.verifyRightToModify(ctxt, diaryID, user)
	if err != nil {
		return Diary{}, err
	}
	var record Diary
	err = s.diaries.FindOne(
		ctxt, bson.M{"_id": objectID, "creator.id": user.ID},
	).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Diary{}, ErrDiaryNotFound
		}
		log.WithError(err).WithFields(s.LogTags).Errorf("Diary %s fetch failed", diaryID)
		return Diary{}, err
	}
	return record, nil
}

// findNewestFirst run one diary query sorted newest first
func (s *diaryStoreImpl) findNewestFirst(
	ctxt context.Context, query bson.M,
) ([]Diary, int, error) {
	cursor, err := s.diaries.Find(
		ctxt, query,
		options.Find().SetSort(bson.D{{Key: "created_stamp", Value: -1}}),
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Diary query failed")
		return nil, 0, err
	}
	var records []Diary
	if err := cursor.All(ctxt, &records); err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Diary cursor drain failed")
		return nil, 0, err
	}
	return records, len(records), nil
}

// GetPrivate fetch the user's unpublished diaries
func (s *diaryStoreImpl) GetPrivate(
	ctxt context.Context, user auth.Identity,
) ([]Diary, int, error) {
	return s.findNewestFirst(ctxt, bson.M{"published": false, "creator.id": user.ID})
}

// GetPublished fetch the user's published diaries
func (s *diaryStoreImpl) GetPublished(
	ctxt context.Context, user auth.Identity,
) ([]Diary, int, error) {
	return s.findNewestFirst(ctxt, bson.M{"published": true, "creator.id": user.ID})
}

// GetPublic fetch all published diaries, optionally filtered by team
func (s *diaryStoreImpl) GetPublic(ctxt context.Context, team string) ([]Diary, int, error) {
	query := bson.M{"published": true}
	if team != "all" {
		query["team"] = team
	}
	return s.findNewestFirst(ctxt, query)
}

// Update apply a partial update to a diary the user owns
func (s *diaryStoreImpl) Update(
	ctxt context.Context, diaryID string, user auth.Identity, edited EditedDiary,
) (bool, error) {
	objectID, err := s.verifyRightToModify(ctxt, diaryID, user)
	if err != nil {
		return false, err
	}
	changes := bson.M{}
	if edited.Content != nil {
		changes["content"] = *edited.Content
	}
	if edited.Published != nil {
		changes["published"] = *edited.Published
	}
	if len(changes) == 0 {
		return false, nil
	}
	result, err := s.diaries.UpdateOne(
		ctxt,
		bson.M{"_id": objectID, "creator.id": user.ID},
		bson.M{"$set": changes},
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to update diary %s", diaryID)
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

// Delete remove a diary the user owns
func (s *diaryStoreImpl) Delete(
	ctxt context.Context, diaryID string, user auth.Identity,
) (bool, error) {
	objectID, err := s.verifyRightToModify(ctxt, diaryID, user)
	if err != nil {
		return false, err
	}
	result, err := s.diaries.DeleteOne(
		ctxt, bson.M{"_id": objectID, "creator.id": user.ID},
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to delete diary %s", diaryID)
		return false, err
	}
	return result.DeletedCount > 0, nil
}
