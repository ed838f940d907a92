package record

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

// Connect dials MongoDB with command tracing and checks the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

type MongoRecorder struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoRecorder(client *mongo.Client, dbName, collectionName string) *MongoRecorder {
	return &MongoRecorder{
		collection: client.Database(dbName).Collection(collectionName),
		now:        time.Now,
	}
}

func (r *MongoRecorder) Update(ctx context.Context, recordID string, u Update) error {
	_, err := r.collection.UpdateOne(ctx, recordFilter(recordID), bson.M{"$set": setFields(u, r.now())})
	return err
}

// recordFilter matches ObjectID keys when the id looks like one.
func recordFilter(recordID string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(recordID); err == nil {
		return bson.M{"_id": oid}
	}
	return bson.M{"_id": recordID}
}

func setFields(u Update, now time.Time) bson.M {
	fields := bson.M{
		"renderStatus": u.Status,
		"updatedAt":    now.UTC(),
	}
	if u.URL != "" {
		fields["renderUrl"] = u.URL
	}
	if u.Resolution != "" {
		fields["resolution"] = u.Resolution
	}
	if u.Error != "" {
		fields["renderError"] = u.Error
	}
	return fields
}

var _ Recorder = (*MongoRecorder)(nil)
