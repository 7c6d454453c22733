package notes

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const applicationsCollection = "job_applications"

// MongoStore stores notes inside the candidate's application document,
// in an embedded notes array keyed by the candidate's profile id.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(applicationsCollection)}
}

func (s *MongoStore) Add(ctx context.Context, candidateID string, n Note) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"userProfile": candidateID},
		bson.M{"$push": bson.M{"notes": n}},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: no application for candidate", ErrNotFound)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, candidateID, noteID, content string) (Note, error) {
	res := s.coll.FindOneAndUpdate(ctx,
		bson.M{"userProfile": candidateID, "notes._id": noteID},
		bson.M{"$set": bson.M{"notes.$.note": content}},
		options.FindOneAndUpdate().SetReturnDocument(options.After).
			SetProjection(bson.M{"notes": bson.M{"$elemMatch": bson.M{"_id": noteID}}}),
	)

	var doc struct {
		Notes []Note `bson:"notes"`
	}
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Note{}, ErrNotFound
		}
		return Note{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if len(doc.Notes) == 0 {
		return Note{}, ErrNotFound
	}
	return doc.Notes[0], nil
}

func (s *MongoStore) Delete(ctx context.Context, candidateID, noteID string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"userProfile": candidateID},
		bson.M{"$pull": bson.M{"notes": bson.M{"_id": noteID}}},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if res.MatchedCount == 0 || res.ModifiedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, candidateID string) ([]Note, error) {
	res := s.coll.FindOne(ctx,
		bson.M{"userProfile": candidateID},
		options.FindOne().SetProjection(bson.M{"notes": 1}),
	)

	var doc struct {
		Notes []Note `bson:"notes"`
	}
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return doc.Notes, nil
}
