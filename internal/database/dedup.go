package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SeenMessage reports whether a webhook message id was already processed.
func (m *MongoDB) SeenMessage(ctx context.Context, messageID string) (bool, error) {
	connection, err := m.connect()
	if err != nil {
		return false, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(seenMessagesCollection)

	var result struct {
		MessageID string `bson:"message_id"`
	}
	err = collection.FindOne(ctx, bson.D{{Key: "message_id", Value: messageID}}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkMessageSeen records a message id so redeliveries are dropped.
func (m *MongoDB) MarkMessageSeen(ctx context.Context, messageID string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(seenMessagesCollection)

	filter := bson.D{{Key: "message_id", Value: messageID}}
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "message_id", Value: messageID},
		{Key: "received_at", Value: time.Now()},
	}}}
	opts := options.Update().SetUpsert(true)

	_, err = collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// EvictSeenMessages deletes dedup records older than the retention window.
func (m *MongoDB) EvictSeenMessages(ctx context.Context, window time.Duration) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(seenMessagesCollection)

	cutoff := time.Now().Add(-window)
	_, err = collection.DeleteMany(ctx, bson.D{{Key: "received_at", Value: bson.D{{Key: "$lt", Value: cutoff}}}})
	return err
}
