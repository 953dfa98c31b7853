// Package curated is the pre-authored question bank the AI Proxy consults
// before calling out to a generative provider, when a session's config sets
// includeCuratedQuestions. Grounded directly in the teacher's question
// service's Mongo repository (client wiring, collection access, unique
// index, CRUD shape).
package curated

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"peerprep/interview/internal/apperrors"
	"peerprep/interview/internal/models"
)

// Entry is one curated question, keyed for retrieval by role category and
// question type; Difficulty is stored but NextUnused does not filter on it.
type Entry struct {
	ID             string              `bson:"_id,omitempty" json:"id"`
	RoleCategory   string              `bson:"roleCategory" json:"roleCategory"`
	Type           models.QuestionType `bson:"type" json:"type"`
	Difficulty     string              `bson:"difficulty" json:"difficulty"`
	Text           string              `bson:"text" json:"text"`
	Metadata       bson.M              `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Used           bool                `bson:"used" json:"used"`
	CreatedAt      time.Time           `bson:"createdAt" json:"createdAt"`
}

// Client wraps a *mongo.Client, connected from MONGO_URI, mirroring the
// teacher's question/internal/repositories/mongo.Client.
type Client struct{ raw *mongo.Client }

// Connect dials Mongo with the given URI.
func Connect(ctx context.Context, uri string) (*Client, error) {
	if uri == "" {
		return nil, errors.New("curated: empty mongo URI")
	}
	c, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "failed to connect to mongo", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.Ping(ctx, nil); err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "failed to ping mongo", err)
	}
	return &Client{raw: c}, nil
}

func (c *Client) database(name string) *mongo.Database { return c.raw.Database(name) }

// Bank is the curated-question repository, scoped to one database.
type Bank struct{ col *mongo.Collection }

// NewBank opens the questions collection and ensures the lookup index the
// teacher's question repo establishes for Title, generalized here to
// (roleCategory, type, used).
func NewBank(c *Client, dbName string) (*Bank, error) {
	col := c.database(dbName).Collection("curated_questions")
	b := &Bank{col: col}
	_, _ = b.col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "roleCategory", Value: 1}, {Key: "type", Value: 1}, {Key: "used", Value: 1}},
	})
	return b, nil
}

// NextUnused returns one unused entry matching roleCategory/type, marking it
// used so it is never handed to two sessions. Returns apperrors.NotFound if
// the bank has nothing suitable — the AI Proxy falls through to its
// provider/deterministic path in that case.
func (b *Bank) NextUnused(ctx context.Context, roleCategory string, qType models.QuestionType) (*Entry, error) {
	filter := bson.M{"roleCategory": roleCategory, "type": string(qType), "used": false}
	update := bson.M{"$set": bson.M{"used": true}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var entry Entry
	err := b.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.New(apperrors.NotFound, "no curated question available")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "failed to query curated bank", err)
	}
	return &entry, nil
}

// Seed inserts a batch of curated entries, for operator-driven bank
// population.
func (b *Bank) Seed(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]any, 0, len(entries))
	now := time.Now().UTC()
	for i := range entries {
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = now
		}
		docs = append(docs, entries[i])
	}
	if _, err := b.col.InsertMany(ctx, docs); err != nil {
		return apperrors.Wrap(apperrors.Internal, "failed to seed curated bank", err)
	}
	return nil
}
