package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"PledgePay/entity"
)

// SaveSession upserts a session keyed by phone, refreshing last_active and
// clearing a pending idle warning.
func (m *MongoDB) SaveSession(ctx context.Context, session *entity.Session) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(sessionsCollection)

	session.LastActive = time.Now()
	session.Warned = false

	filter := bson.D{{Key: "phone", Value: session.Phone}}
	update := bson.D{{Key: "$set", Value: session}}
	opts := options.Update().SetUpsert(true)

	_, err = collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// LoadSession retrieves a session by phone, nil when absent.
func (m *MongoDB) LoadSession(ctx context.Context, phone string) (*entity.Session, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(sessionsCollection)

	var session entity.Session
	err = collection.FindOne(ctx, bson.D{{Key: "phone", Value: phone}}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session. The returned bool reports whether a
// document was actually deleted, which callers use as an atomic claim:
// only the deleter that observed true may commit payment side effects.
func (m *MongoDB) DeleteSession(ctx context.Context, phone string) (bool, error) {
	connection, err := m.connect()
	if err != nil {
		return false, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(sessionsCollection)

	res, err := collection.DeleteOne(ctx, bson.D{{Key: "phone", Value: phone}})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// UpdateSession writes a session only if it still exists. Mid-dialogue
// saves go through here so a session the payment coordinator has already
// claimed (deleted) cannot be recreated by a concurrent dialogue turn.
func (m *MongoDB) UpdateSession(ctx context.Context, session *entity.Session) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(sessionsCollection)

	session.LastActive = time.Now()
	session.Warned = false

	filter := bson.D{{Key: "phone", Value: session.Phone}}
	update := bson.D{{Key: "$set", Value: session}}

	_, err = collection.UpdateOne(ctx, filter, update)
	return err
}

// MarkSessionWarned flags that an idle warning went out, so the reaper does
// not warn twice before final expiry.
func (m *MongoDB) MarkSessionWarned(ctx context.Context, phone string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(sessionsCollection)

	update := bson.D{{Key: "$set", Value: bson.D{{Key: "warned", Value: true}}}}
	_, err = collection.UpdateOne(ctx, bson.D{{Key: "phone", Value: phone}}, update)
	return err
}

// AllSessions returns a snapshot of every session, for the reaper sweep.
func (m *MongoDB) AllSessions(ctx context.Context) ([]entity.Session, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(sessionsCollection)

	cursor, err := collection.Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []entity.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
