package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MeridianExplorer/noobaa-core/pkg/catalog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is the production Store, backed by go.mongodb.org/mongo-driver.
// Its vocabulary (bson.M, mongo.IndexModel, mongo.BulkWrite) matches spec.md
// 6's external-interface description almost operation-for-operation.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Dial connects to uri and returns a MongoStore bound to database dbName.
func Dial(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("docstore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(dbName)}, nil
}

func (m *MongoStore) EnsureCollection(ctx context.Context, collection string) error {
	err := m.db.CreateCollection(ctx, collection)
	if err == nil {
		return nil
	}
	// Mongo returns a command error with code 48 (NamespaceExists) when the
	// collection is already there; that is not a failure for this idempotent
	// operation.
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 48 {
		return nil
	}
	if strings.Contains(err.Error(), "already exists") {
		return nil
	}
	return fmt.Errorf("docstore: ensure collection %s: %w", collection, err)
}

func (m *MongoStore) EnsureIndex(ctx context.Context, collection string, idx IndexDef) error {
	keys := bson.D{}
	for _, f := range idx.Fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	opts := options.Index().SetUnique(idx.Unique).SetBackground(idx.Background)
	if idx.Name != "" {
		opts = opts.SetName(idx.Name)
	}
	_, err := m.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: opts,
	})
	if err != nil {
		return fmt.Errorf("docstore: ensure index %s on %s: %w", idx.Name, collection, err)
	}
	return nil
}

func (m *MongoStore) FindLive(ctx context.Context, collection string) ([]catalog.Document, error) {
	cur, err := m.db.Collection(collection).Find(ctx, bson.M{"deleted": nil})
	if err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("docstore: decode %s: %w", collection, err)
	}
	docs := make([]catalog.Document, len(raw))
	for i, r := range raw {
		docs[i] = catalog.Document(r)
	}
	return docs, nil
}

func (m *MongoStore) BulkWrite(ctx context.Context, collection string, ops []WriteOp) (BulkResult, error) {
	result := BulkResult{Failed: make(map[string]error)}
	if len(ops) == 0 {
		return result, nil
	}

	models := make([]mongo.WriteModel, 0, len(ops))
	idByIndex := make([]string, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case OpInsert:
			models = append(models, mongo.NewInsertOneModel().SetDocument(bson.M(op.Doc)))
			idByIndex = append(idByIndex, op.Doc.ID())
		case OpUpdate:
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": op.ID}).
				SetUpdate(bson.M(op.Update)))
			idByIndex = append(idByIndex, op.ID)
		case OpRemove:
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": op.ID}).
				SetUpdate(bson.M{"$set": bson.M{"deleted": time.Now()}}))
			idByIndex = append(idByIndex, op.ID)
		}
	}

	_, err := m.db.Collection(collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	failedIdx := map[int]error{}
	if err != nil {
		var bwErr mongo.BulkWriteException
		if errors.As(err, &bwErr) {
			for _, we := range bwErr.WriteErrors {
				failedIdx[we.Index] = fmt.Errorf("%s", we.Message)
			}
		} else {
			// Not a per-op error (e.g. a connection failure): treat the
			// whole bulk as failed, per StoreWriteError semantics.
			return result, fmt.Errorf("docstore: bulk write %s: %w", collection, err)
		}
	}

	for i, id := range idByIndex {
		if writeErr, failed := failedIdx[i]; failed {
			result.Failed[id] = writeErr
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
