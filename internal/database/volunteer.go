package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"PledgePay/entity"
)

// SaveVolunteer upserts a volunteer registration keyed by phone.
func (m *MongoDB) SaveVolunteer(ctx context.Context, v entity.Volunteer) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(volunteersCollection)

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	filter := bson.D{{Key: "phone", Value: v.Phone}}
	update := bson.D{{Key: "$set", Value: v}}
	opts := options.Update().SetUpsert(true)

	_, err = collection.UpdateOne(ctx, filter, update, opts)
	return err
}
