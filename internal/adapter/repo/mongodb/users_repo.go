// Package mongodb stores user accounts: signups awaiting e-mail verification
// in pending_users and confirmed accounts in verified_users.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
)

const (
	pendingCollection  = "pending_users"
	verifiedCollection = "verified_users"
)

type pendingDoc struct {
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password"`
	Token        string    `bson:"verification_token"`
	TokenExpiry  time.Time `bson:"token_expiry"`
	CreatedAt    time.Time `bson:"created_at"`
}

type verifiedDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password"`
	VerifiedAt   time.Time          `bson:"verified_at"`
}

// Connect opens a client and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("op=mongodb.Connect: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("op=mongodb.Connect: %w", err)
	}
	return client, nil
}

// UserRepo implements domain.UserRepository.
type UserRepo struct {
	pending  *mongo.Collection
	verified *mongo.Collection
	now      func() time.Time
}

// NewUserRepo binds the repository to a database.
func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{
		pending:  db.Collection(pendingCollection),
		verified: db.Collection(verifiedCollection),
		now:      time.Now,
	}
}

// EnsureIndexes creates unique e-mail indexes on both collections.
func (r *UserRepo) EnsureIndexes(ctx context.Context) error {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)}
	for _, c := range []*mongo.Collection{r.pending, r.verified} {
		if _, err := c.Indexes().CreateOne(ctx, idx); err != nil {
			return fmt.Errorf("op=users.EnsureIndexes: %s: %w", c.Name(), err)
		}
	}
	return nil
}

func (r *UserRepo) span(ctx context.Context, name, coll string) (context.Context, func()) {
	ctx, span := otel.Tracer("repo.users").Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "mongodb"),
		attribute.String("db.mongodb.collection", coll),
	)
	return ctx, func() { span.End() }
}

// EmailExists reports whether the address belongs to a verified user or to a
// pending signup whose token has not expired.
func (r *UserRepo) EmailExists(ctx domain.Context, email string) (bool, error) {
	ctx, end := r.span(ctx, "users.EmailExists", verifiedCollection)
	defer end()
	n, err := r.verified.CountDocuments(ctx, bson.D{{Key: "email", Value: email}})
	if err != nil {
		return false, fmt.Errorf("op=users.EmailExists: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	n, err = r.pending.CountDocuments(ctx, bson.D{
		{Key: "email", Value: email},
		{Key: "token_expiry", Value: bson.D{{Key: "$gt", Value: r.now().UTC()}}},
	})
	if err != nil {
		return false, fmt.Errorf("op=users.EmailExists: %w", err)
	}
	return n > 0, nil
}

// CreatePending stores a signup, replacing an expired one for the same address.
func (r *UserRepo) CreatePending(ctx domain.Context, u domain.PendingUser) error {
	ctx, end := r.span(ctx, "users.CreatePending", pendingCollection)
	defer end()
	doc := pendingDoc{
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Token:        u.Token,
		TokenExpiry:  u.TokenExpiry.UTC(),
		CreatedAt:    u.CreatedAt.UTC(),
	}
	_, err := r.pending.ReplaceOne(ctx, bson.D{{Key: "email", Value: u.Email}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("op=users.CreatePending: %w", err)
	}
	return nil
}

// FindPending looks a signup up by address and token.
func (r *UserRepo) FindPending(ctx domain.Context, email, token string) (domain.PendingUser, error) {
	ctx, end := r.span(ctx, "users.FindPending", pendingCollection)
	defer end()
	var doc pendingDoc
	err := r.pending.FindOne(ctx, bson.D{{Key: "email", Value: email}, {Key: "verification_token", Value: token}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.PendingUser{}, fmt.Errorf("op=users.FindPending: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.PendingUser{}, fmt.Errorf("op=users.FindPending: %w", err)
	}
	return domain.PendingUser{
		Name:         doc.Name,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Token:        doc.Token,
		TokenExpiry:  doc.TokenExpiry,
		CreatedAt:    doc.CreatedAt,
	}, nil
}

// DeletePending removes the signup for an address.
func (r *UserRepo) DeletePending(ctx domain.Context, email string) error {
	ctx, end := r.span(ctx, "users.DeletePending", pendingCollection)
	defer end()
	if _, err := r.pending.DeleteOne(ctx, bson.D{{Key: "email", Value: email}}); err != nil {
		return fmt.Errorf("op=users.DeletePending: %w", err)
	}
	return nil
}

// DeleteExpiredPending removes pending signups whose token expired before t.
func (r *UserRepo) DeleteExpiredPending(ctx context.Context, before time.Time) (int64, error) {
	ctx, end := r.span(ctx, "users.DeleteExpiredPending", pendingCollection)
	defer end()
	res, err := r.pending.DeleteMany(ctx, bson.D{{Key: "token_expiry", Value: bson.D{{Key: "$lt", Value: before.UTC()}}}})
	if err != nil {
		return 0, fmt.Errorf("op=users.DeleteExpiredPending: %w", err)
	}
	return res.DeletedCount, nil
}

// CreateVerified inserts a verified account and returns its id.
func (r *UserRepo) CreateVerified(ctx domain.Context, u domain.User) (string, error) {
	ctx, end := r.span(ctx, "users.CreateVerified", verifiedCollection)
	defer end()
	res, err := r.verified.InsertOne(ctx, verifiedDoc{
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		VerifiedAt:   u.VerifiedAt.UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return "", fmt.Errorf("op=users.CreateVerified: %w", domain.ErrConflict)
	}
	if err != nil {
		return "", fmt.Errorf("op=users.CreateVerified: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprint(res.InsertedID), nil
}

// FindVerified looks a verified account up by address.
func (r *UserRepo) FindVerified(ctx domain.Context, email string) (domain.User, error) {
	ctx, end := r.span(ctx, "users.FindVerified", verifiedCollection)
	defer end()
	var doc verifiedDoc
	err := r.verified.FindOne(ctx, bson.D{{Key: "email", Value: email}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, fmt.Errorf("op=users.FindVerified: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("op=users.FindVerified: %w", err)
	}
	return domain.User{
		ID:           doc.ID.Hex(),
		Name:         doc.Name,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		VerifiedAt:   doc.VerifiedAt,
	}, nil
}
