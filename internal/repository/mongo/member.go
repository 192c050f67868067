// Package mongo keeps the member directory in MongoDB. Units and the ledger
// always stay in the relational store; only identities can live here.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/logger"
	"library-ledger-backend/internal/repository"
)

const membersCollection = "members"

type memberDocument struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	EmailLower   string    `bson:"email_lower"`
	PasswordHash string    `bson:"password_hash"`
	Role         string    `bson:"role"`
	Status       string    `bson:"status"`
	CreatedOn    time.Time `bson:"created_on"`
}

type memberRepository struct {
	coll *mongo.Collection
}

func NewMemberRepository(db *mongo.Database) repository.MemberRepository {
	return &memberRepository{coll: db.Collection(membersCollection)}
}

// Connect opens a client and ensures the unique email index exists.
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	logger.ExternalServiceCall("MongoDB", "Connect", "database", database)
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		logger.ExternalServiceResult("MongoDB", "Connect", err)
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		logger.ExternalServiceResult("MongoDB", "Connect", err)
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(database)
	_, err = db.Collection(membersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email_lower", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	logger.ExternalServiceResult("MongoDB", "Connect", err)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ensure member indexes: %w", err)
	}
	return client, db, nil
}

func (r *memberRepository) Create(ctx context.Context, m *domain.Member) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedOn.IsZero() {
		m.CreatedOn = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, toDocument(m))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrDuplicate
	}
	return err
}

func (r *memberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *memberRepository) GetByEmail(ctx context.Context, email string) (*domain.Member, error) {
	return r.findOne(ctx, bson.D{{Key: "email_lower", Value: strings.ToLower(email)}})
}

func (r *memberRepository) UpdateStatus(ctx context.Context, id string, status domain.MemberStatus) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: string(status)}}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *memberRepository) findOne(ctx context.Context, filter bson.D) (*domain.Member, error) {
	var doc memberDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromDocument(doc), nil
}

func toDocument(m *domain.Member) memberDocument {
	return memberDocument{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		EmailLower:   strings.ToLower(m.Email),
		PasswordHash: m.PasswordHash,
		Role:         string(m.Role),
		Status:       string(m.Status),
		CreatedOn:    m.CreatedOn,
	}
}

func fromDocument(d memberDocument) *domain.Member {
	return &domain.Member{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         domain.Role(d.Role),
		Status:       domain.MemberStatus(d.Status),
		CreatedOn:    d.CreatedOn.UTC(),
	}
}
