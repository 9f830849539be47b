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
	"golang.org/x/crypto/bcrypt"
)

// User account types
const (
	UserTypeClient = "client"
	UserTypeAdmin  = "admin"
)

// ErrUserNotFound no user matches the query
var ErrUserNotFound = errors.New("user not found")

// User one user account
type User struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username    string             `bson:"username" json:"username"`
	Email       string             `bson:"email" json:"email"`
	UserType    string             `bson:"user_type" json:"user_type"`
	MemberSince time.Time          `bson:"member_since" json:"member_since"`
	Activated   bool               `bson:"activated" json:"activated"`
	HashPwd     []byte             `bson:"hashpwd" json:"-"`
}

// Identity project the account into a session credential payload
func (u User) Identity() auth.Identity {
	return auth.Identity{
		ID:          u.ID.Hex(),
		Username:    u.Username,
		Email:       u.Email,
		UserType:    u.UserType,
		MemberSince: u.MemberSince,
		Activated:   u.Activated,
	}
}

// NewUser registration request parameters
type NewUser struct {
	Username        string `json:"username" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// EditedUser partial account update parameters
type EditedUser struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

// UserStore manage the users collection
type UserStore interface {
	// Register create a new account; returns the new account's ID
	Register(ctxt context.Context, newUser NewUser, userType string) (string, error)
	// CheckPassword verify login credentials against username or email
	CheckPassword(ctxt context.Context, usernameOrEmail, password string) (bool, User, error)
	// GetByID fetch one account by ID
	GetByID(ctxt context.Context, userID string) (User, error)
	// GetUsers fetch accounts matching one search criteria, sorted by it
	GetUsers(ctxt context.Context, criteria string, value interface{}, order string) ([]User, error)
	// Update apply a partial account update
	Update(ctxt context.Context, userID string, edited EditedUser) (bool, error)
	// Delete remove one account
	Delete(ctxt context.Context, userID string) (bool, error)
	// Activate mark an account activated
	Activate(ctxt context.Context, userID string) (bool, error)
}

// userStoreImpl implements UserStore
type userStoreImpl struct {
	common.Component
	users    *mongo.Collection
	validate *validator.Validate
}

// GetUserStore define a UserStore over the users collection
func GetUserStore(ctxt context.Context, client MongoClient) (UserStore, error) {
	logTags := log.Fields{
		"module":    "storage",
		"component": "user-store",
	}
	users := client.DB().Collection("users")
	// Accounts are unique per username and per email
	_, err := users.Indexes().CreateMany(ctxt, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to ensure user indexes")
		return nil, err
	}
	return &userStoreImpl{
		Component: common.Component{LogTags: logTags},
		users:     users,
		validate:  validator.New(),
	}, nil
}

// Register create a new account
func (s *userStoreImpl) Register(
	ctxt context.Context, newUser NewUser, userType string,
) (string, error) {
	if err := s.validate.Struct(&newUser); err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Invalid registration for %s", newUser.Username,
		)
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(newUser.Password), bcrypt.DefaultCost)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Password hashing failed")
		return "", err
	}
	record := User{
		Username:    newUser.Username,
		Email:       newUser.Email,
		UserType:    userType,
		MemberSince: time.Now().UTC(),
		Activated:   true,
		HashPwd:     hashed,
	}
	result, err := s.users.InsertOne(ctxt, record)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Unable to register user %s", newUser.Username,
		)
		return "", err
	}
	newID := result.InsertedID.(primitive.ObjectID).Hex()
	log.WithFields(s.LogTags).Infof("Registered user %s as %s", newUser.Username, newID)
	return newID, nil
}

// CheckPassword verify login credentials against username or email
func (s *userStoreImpl) CheckPassword(
	ctxt context.Context, usernameOrEmail, password string,
) (bool, User, error) {
	var record User
	err := s.users.FindOne(ctxt, bson.M{"username": usernameOrEmail}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Retry treating the login name as an email
		err = s.users.FindOne(ctxt, bson.M{"email": usernameOrEmail}).Decode(&record)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, User{}, nil
		}
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"User lookup for %s failed", usernameOrEmail,
		)
		return false, User{}, err
	}
	if bcrypt.CompareHashAndPassword(record.HashPwd, []byte(password)) != nil {
		return false, User{}, nil
	}
	return true, record, nil
}

// GetByID fetch one account by ID
func (s *userStoreImpl) GetByID(ctxt context.Context, userID string) (User, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	var record User
	if err := s.users.FindOne(ctxt, bson.M{"_id": objectID}).Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrUserNotFound
		}
		log.WithError(err).WithFields(s.LogTags).Errorf("User %s lookup failed", userID)
		return User{}, err
	}
	return record, nil
}

// GetUsers fetch accounts matching one search criteria
func (s *userStoreImpl) GetUsers(
	ctxt context.Context, criteria string, value interface{}, order string,
) ([]User, error) {
	sortOrder := 1
	if order == "desc" {
		sortOrder = -1
	}
	cursor, err := s.users.Find(
		ctxt,
		bson.M{criteria: value},
		options.Find().SetSort(bson.D{{Key: criteria, Value: sortOrder}}),
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("User query on %s failed", criteria)
		return nil, err
	}
	var records []User
	if err := cursor.All(ctxt, &records); err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("User cursor drain failed")
		return nil, err
	}
	return records, nil
}

// Update apply a partial account update
func (s *userStoreImpl) Update(
	ctxt context.Context, userID string, edited EditedUser,
) (bool, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return false, ErrUserNotFound
	}
	changes := bson.M{}
	if edited.Username != nil {
		changes["username"] = *edited.Username
	}
	if edited.Email != nil {
		changes["email"] = *edited.Email
	}
	if edited.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*edited.Password), bcrypt.DefaultCost)
		if err != nil {
			log.WithError(err).WithFields(s.LogTags).Error("Password hashing failed")
			return false, err
		}
		changes["hashpwd"] = hashed
	}
	if len(changes) == 0 {
		return false, nil
	}
	result, err := s.users.UpdateOne(ctxt, bson.M{"_id": objectID}, bson.M{"$set": changes})
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to update user %s", userID)
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

// Delete remove one account
func (s *userStoreImpl) Delete(ctxt context.Context, userID string) (bool, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return false, ErrUserNotFound
	}
	result, err := s.users.DeleteOne(ctxt, bson.M{"_id": objectID})
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to delete user %s", userID)
		return false, err
	}
	return result.DeletedCount > 0, nil
}

// Activate mark an account activated
func (s *userStoreImpl) Activate(ctxt context.Context, userID string) (bool, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return false, ErrUserNotFound
	}
	result, err := s.users.UpdateOne(
		ctxt, bson.M{"_id": objectID}, bson.M{"$set": bson.M{"activated": true}},
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to activate user %s", userID)
		return false, err
	}
	return result.ModifiedCount > 0, nil
}
