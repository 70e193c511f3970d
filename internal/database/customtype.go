package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"PledgePay/entity"
)

// ActiveCustomTypes returns non-expired custom donation types in insertion
// order. Expiry is filtered at read time; pruning is the reaper's job.
func (m *MongoDB) ActiveCustomTypes(ctx context.Context) ([]entity.CustomType, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(customTypesCollection)

	// Natural _id order is insertion order, matching the menu contract.
	cursor, err := collection.Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var all []entity.CustomType
	if err := cursor.All(ctx, &all); err != nil {
		return nil, err
	}

	now := time.Now()
	active := all[:0]
	for _, t := range all {
		if t.Active(now) {
			active = append(active, t)
		}
	}
	return active, nil
}

// AppendCustomType records an admin-approved custom donation type.
func (m *MongoDB) AppendCustomType(ctx context.Context, entry entity.CustomType) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(customTypesCollection)

	_, err = collection.InsertOne(ctx, entry)
	return err
}

// ApproveCustomTypes approves all pending custom types contributed by a
// phone, returning how many were approved.
func (m *MongoDB) ApproveCustomTypes(ctx context.Context, addedBy, approvedBy string, expires *time.Time) (int, error) {
	connection, err := m.connect()
	if err != nil {
		return 0, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(customTypesCollection)

	filter := bson.D{
		{Key: "added_by", Value: addedBy},
		{Key: "approved_on", Value: time.Time{}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "approved_by", Value: approvedBy},
		{Key: "approved_on", Value: time.Now()},
		{Key: "expires", Value: expires},
	}}}

	result, err := collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return int(result.ModifiedCount), nil
}

// PruneExpiredCustomTypes drops custom types whose expiry has passed.
func (m *MongoDB) PruneExpiredCustomTypes(ctx context.Context) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(customTypesCollection)

	filter := bson.D{
		{Key: "expires", Value: bson.D{{Key: "$ne", Value: nil}}},
		{Key: "expires", Value: bson.D{{Key: "$lt", Value: time.Now()}}},
	}
	_, err = collection.DeleteMany(ctx, filter)
	return err
}
