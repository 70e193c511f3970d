package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"PledgePay/entity"
)

// AppendPayment writes a payment record to the append-only ledger.
func (m *MongoDB) AppendPayment(ctx context.Context, record entity.PaymentRecord) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(paymentsCollection)

	_, err = collection.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("mongodb insert error: %w", err)
	}
	return nil
}

// PaymentsSince returns ledger records paid after the cutoff, oldest first.
func (m *MongoDB) PaymentsSince(ctx context.Context, cutoff time.Time) ([]entity.PaymentRecord, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(paymentsCollection)

	cursor, err := collection.Find(ctx, bson.D{{Key: "paid_at", Value: bson.D{{Key: "$gte", Value: cutoff}}}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []entity.PaymentRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}
