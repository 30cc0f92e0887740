package internal

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pixtip/internal/config"
	"pixtip/models"
)

const (
	collectionLog           = "sys_log"
	collectionUsers         = "users"
	collectionRequests      = "requests"
	collectionPaymentOrders = "payment_orders"
	collectionSubscriptions = "subscriptions"
)

type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	return newMongoClient(connectionUri, conf.Mongo.User, conf.Mongo.Password, conf.Mongo.Database), nil
}

func newMongoClient(uri, user, password, database string) *MongoDB {
	clientOptions := options.Client().ApplyURI(uri)
	if user != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   user,
			Password:   password,
			AuthSource: database,
		})
	}
	return &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      database,
	}
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	err := connection.Disconnect(m.ctx)
	if err != nil {
		log.Println("mongodb disconnect error;", err)
	}
}

func (m *MongoDB) WriteLogMessage(data Data) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionLog)
	_, err = collection.InsertOne(m.ctx, data)
	return err
}

func (m *MongoDB) ReadLog() (interface{}, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var logMessages []FeatureLogMessage
	collection := connection.Database(m.database).Collection(collectionLog)
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(1000)
	cursor, err := collection.Find(m.ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	if err = cursor.All(m.ctx, &logMessages); err != nil {
		return nil, err
	}
	return logMessages, nil
}

// GetBeneficiary returns the payment profile of a user; nil without error when absent
func (m *MongoDB) GetBeneficiary(userId string) (*models.Beneficiary, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "user_id", Value: userId}}
	collection := connection.Database(m.database).Collection(collectionUsers)
	var beneficiary models.Beneficiary
	err = collection.FindOne(m.ctx, filter).Decode(&beneficiary)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &beneficiary, nil
}

func (m *MongoDB) SaveTipRequest(request *models.TipRequest) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionRequests)
	_, err = collection.InsertOne(m.ctx, request)
	return err
}

func (m *MongoDB) GetTipRequests(userId string, limit int64) ([]*models.TipRequest, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "user_id", Value: userId}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	collection := connection.Database(m.database).Collection(collectionRequests)
	cursor, err := collection.Find(m.ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var requests []*models.TipRequest
	if err = cursor.All(m.ctx, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

func (m *MongoDB) SavePaymentOrder(order *models.PaymentOrder) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionPaymentOrders)
	_, err = collection.InsertOne(m.ctx, order)
	return err
}

func (m *MongoDB) UpdatePaymentOrder(order *models.PaymentOrder) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "session_id", Value: order.SessionId}, {Key: "idempotency_key", Value: order.IdempotencyKey}}
	update := bson.M{"$set": order}
	collection := connection.Database(m.database).Collection(collectionPaymentOrders)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

// GetPaymentOrder returns the latest order of a session
func (m *MongoDB) GetPaymentOrder(sessionId string) (*models.PaymentOrder, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "session_id", Value: sessionId}}
	opts := options.FindOne().SetSort(bson.D{{Key: "time_opened", Value: -1}})
	collection := connection.Database(m.database).Collection(collectionPaymentOrders)
	var order models.PaymentOrder
	err = collection.FindOne(m.ctx, filter, opts).Decode(&order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetSubscriptions returns all subscriptions
func (m *MongoDB) GetSubscriptions() ([]models.UserSubscription, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSubscriptions)
	cursor, err := collection.Find(m.ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	var subscriptions []models.UserSubscription
	if err = cursor.All(m.ctx, &subscriptions); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (m *MongoDB) getSubscription(subscription *models.UserSubscription) (*models.UserSubscription, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "chat_id", Value: subscription.ChatID}, {Key: "beneficiary_id", Value: subscription.BeneficiaryId}}
	collection := connection.Database(m.database).Collection(collectionSubscriptions)
	var existing models.UserSubscription
	err = collection.FindOne(m.ctx, filter).Decode(&existing)
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

// AddSubscription adds a new subscription of a chat to a beneficiary
func (m *MongoDB) AddSubscription(subscription *models.UserSubscription) error {
	existed, _ := m.getSubscription(subscription)
	if existed != nil {
		return fmt.Errorf("chat is already subscribed to %s", subscription.BeneficiaryId)
	}
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSubscriptions)
	_, err = collection.InsertOne(m.ctx, subscription)
	return err
}

// DeleteSubscription removes all subscriptions of a chat
func (m *MongoDB) DeleteSubscription(subscription *models.UserSubscription) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "chat_id", Value: subscription.ChatID}}
	collection := connection.Database(m.database).Collection(collectionSubscriptions)
	_, err = collection.DeleteMany(m.ctx, filter)
	return err
}
