package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const playDataCollection = "plays_data"

// playDocument is the document shape in the plays_data collection: the play's
// relational id plus the free-form diagram payload.
type playDocument struct {
	PlayID uint        `bson:"play_id"`
	Data   interface{} `bson:"data"`
}

// PlayData stores play diagram payloads keyed by the structured play id.
// The relational row stays authoritative for play existence; this store only
// holds the loosely-typed half.
type PlayData struct {
	collection *mongo.Collection
}

func NewPlayData(db *mongo.Database) *PlayData {
	return &PlayData{collection: db.Collection(playDataCollection)}
}

// Put writes the payload for a play, creating the document if the play was
// payload-less until now.
func (s *PlayData) Put(ctx context.Context, playID uint, data interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"play_id": playID},
		bson.M{"$set": bson.M{"data": data}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert play data: %w", err)
	}
	return nil
}

// Get returns the payload for a play, or nil when none was ever stored.
func (s *PlayData) Get(ctx context.Context, playID uint) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc playDocument
	err := s.collection.FindOne(ctx, bson.M{"play_id": playID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get play data: %w", err)
	}
	return doc.Data, nil
}

// GetMany fetches the payloads for a set of plays in one round trip. Plays
// without a payload are simply absent from the returned map.
func (s *PlayData) GetMany(ctx context.Context, playIDs []uint) (map[uint]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := s.collection.Find(ctx, bson.M{"play_id": bson.M{"$in": playIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to query play data: %w", err)
	}

	var docs []playDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode play data: %w", err)
	}

	out := make(map[uint]interface{}, len(docs))
	for _, doc := range docs {
		out[doc.PlayID] = doc.Data
	}
	return out, nil
}

// Delete removes a play's payload. Deleting an absent key is a no-op so the
// call is idempotent.
func (s *PlayData) Delete(ctx context.Context, playID uint) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.collection.DeleteOne(ctx, bson.M{"play_id": playID}); err != nil {
		return fmt.Errorf("failed to delete play data: %w", err)
	}
	return nil
}

// DeleteMany removes the payloads for a set of plays, used by the team delete
// cascade.
func (s *PlayData) DeleteMany(ctx context.Context, playIDs []uint) error {
	if len(playIDs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.collection.DeleteMany(ctx, bson.M{"play_id": bson.M{"$in": playIDs}}); err != nil {
		return fmt.Errorf("failed to delete play data: %w", err)
	}
	return nil
}
