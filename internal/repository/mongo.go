package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/edssentials/edssentials-api/internal/model"
	"github.com/edssentials/edssentials-api/internal/retry"
)

// usersCollection is the collection legacy deployments wrote users to.
const usersCollection = "users"

// MongoStore provides MongoDB access methods for user records.
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
}

// userDocument is the stored shape. Field names match documents written by
// legacy deployments so existing data stays readable; _id may be an
// ObjectID (legacy) or a ULID string (records created here).
type userDocument struct {
	ID          any        `bson:"_id"`
	Email       string     `bson:"email"`
	Password    string     `bson:"password"`
	FirstName   string     `bson:"firstName"`
	LastName    string     `bson:"lastName"`
	Role        string     `bson:"role"`
	IsActive    bool       `bson:"isActive"`
	CreatedAt   time.Time  `bson:"createdAt"`
	LastLoginAt *time.Time `bson:"lastLogin,omitempty"`
}

// NewMongo connects to MongoDB and ensures the unique email index exists.
func NewMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		return nil, fmt.Errorf("mongo database name is required: %w", retry.ErrPermanent)
	}

	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w: %w", retry.ErrPermanent, err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	store := &MongoStore{
		client: client,
		users:  client.Database(database).Collection(usersCollection),
	}

	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return store, nil
}

// ensureIndexes creates the unique email index that arbitrates concurrent inserts.
// Uses the default index name so an index created by legacy deployments is reused.
func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create email index: %w", err)
	}
	return nil
}

// Ping checks MongoDB connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Name identifies the backend in health checks.
func (s *MongoStore) Name() string {
	return "mongodb"
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// InsertUser inserts a new user document.
func (s *MongoStore) InsertUser(ctx context.Context, user *model.User) error {
	if err := prepareInsert(user); err != nil {
		return err
	}

	doc := userDocument{
		ID:        user.ID,
		Email:     user.Email,
		Password:  user.PasswordHash,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      string(user.Role),
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailExists
		}
		return wrapMongoError("failed to create user", err)
	}

	return nil
}

// FindUserByID retrieves a user by their ID.
func (s *MongoStore) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.findOne(ctx, idFilter(id), "failed to get user by ID")
}

// FindUserByEmail retrieves a user by email address, case-insensitively.
func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findOne(ctx, bson.M{"email": model.NormalizeEmail(email)}, "failed to get user by email")
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M, op string) (*model.User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, wrapMongoError(op, err)
	}
	return doc.toModel()
}

// ListUsers returns every user ordered by creation time.
func (s *MongoStore) ListUsers(ctx context.Context) ([]*model.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, wrapMongoError("failed to list users", err)
	}

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapMongoError("failed to decode users", err)
	}

	users := make([]*model.User, 0, len(docs))
	for i := range docs {
		user, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, nil
}

// UpdateUserActive sets the isActive flag.
func (s *MongoStore) UpdateUserActive(ctx context.Context, id string, active bool) error {
	return s.updateOne(ctx, id, bson.M{"isActive": active}, "failed to update user active flag", true)
}

// UpdateUserLastLogin records a successful login.
func (s *MongoStore) UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.updateOne(ctx, id, bson.M{"lastLogin": at}, "failed to update user last login", false)
}

// UpdateUserPassword replaces the stored password hash.
func (s *MongoStore) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	return s.updateOne(ctx, id, bson.M{"password": passwordHash}, "failed to update user password", true)
}

func (s *MongoStore) updateOne(ctx context.Context, id string, set bson.M, op string, mustMatch bool) error {
	result, err := s.users.UpdateOne(ctx, idFilter(id), bson.M{"$set": set})
	if err != nil {
		return wrapMongoError(op, err)
	}
	if mustMatch && result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// idFilter matches both ULID string IDs and legacy ObjectIDs.
func idFilter(id string) bson.M {
	if oid, err := bson.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{"_id": id}
}

func (d *userDocument) toModel() (*model.User, error) {
	role, err := decodeRole(d.Role)
	if err != nil {
		return nil, err
	}

	var id string
	switch v := d.ID.(type) {
	case string:
		id = v
	case bson.ObjectID:
		id = v.Hex()
	default:
		return nil, fmt.Errorf("%w: unsupported _id type %T", ErrInvalidRecord, d.ID)
	}

	return &model.User{
		ID:           id,
		Email:        d.Email,
		PasswordHash: d.Password,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Role:         role,
		IsActive:     d.IsActive,
		CreatedAt:    d.CreatedAt,
		LastLoginAt:  d.LastLoginAt,
	}, nil
}

// wrapMongoError keeps driver timeouts recognizable as context.DeadlineExceeded.
func wrapMongoError(op string, err error) error {
	if mongo.IsTimeout(err) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, context.DeadlineExceeded, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
