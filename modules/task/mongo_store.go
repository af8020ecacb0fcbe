package task

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	domain "github.com/example/taskflow/domain/task"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// defaultDatabase is used when the connection string names no database.
const defaultDatabase = "test"

// taskDocument is the BSON shape of a task.
type taskDocument struct {
	ID          primitive.ObjectID `bson:"_id"`
	Name        string             `bson:"name"`
	Description string             `bson:"description"`
	Category    string             `bson:"category"`
	Priority    string             `bson:"priority"`
	Status      string             `bson:"status,omitempty"`
	Color       string             `bson:"color"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
	CompletedAt *time.Time         `bson:"completedAt,omitempty"`
}

func toDocument(t *domain.Task) (*taskDocument, error) {
	oid, err := primitive.ObjectIDFromHex(t.ID)
	if err != nil {
		return nil, ErrInvalidID
	}
	return &taskDocument{
		ID:          oid,
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		Priority:    t.Priority,
		Status:      string(t.Status),
		Color:       t.Color,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}, nil
}

func (d *taskDocument) toDomain() *domain.Task {
	return &domain.Task{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		Priority:    d.Priority,
		Status:      domain.Status(d.Status),
		Color:       d.Color,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		CompletedAt: d.CompletedAt,
	}
}

// MongoStore keeps tasks as documents in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	coll   *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore connects to MongoDB and selects the database named in uri.
func NewMongoStore(ctx context.Context, uri string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping failed: %w", err)
	}

	db := client.Database(DatabaseName(uri))
	return &MongoStore{
		client: client,
		db:     db,
		coll:   db.Collection(CollectionName),
	}, nil
}

// DatabaseName returns the database named in a MongoDB URI, or "test".
func DatabaseName(uri string) string {
	cs, err := connstring.Parse(uri)
	if err != nil || cs.Database == "" {
		return defaultDatabase
	}
	return cs.Database
}

// Insert stores a new task.
func (s *MongoStore) Insert(ctx context.Context, t *domain.Task) error {
	doc, err := toDocument(t)
	if err != nil {
		return err
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// InsertMany stores several tasks at once.
func (s *MongoStore) InsertMany(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	docs := make([]any, 0, len(tasks))
	for _, t := range tasks {
		doc, err := toDocument(t)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to create tasks: %w", err)
	}
	return nil
}

// FindByID retrieves a task by its ID.
func (s *MongoStore) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	var doc taskDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return doc.toDomain(), nil
}

// Find returns the tasks matching filter, newest first.
func (s *MongoStore) Find(ctx context.Context, filter ListFilter) ([]*domain.Task, error) {
	query := bson.M{}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	return s.find(ctx, query, opts)
}

// Count returns the number of stored tasks.
func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// Update applies patch with a single findAndModify. Values are wrapped in $literal
// so user input is never read as a field path.
func (s *MongoStore) Update(ctx context.Context, id string, patch TaskPatch) (*domain.Task, *domain.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil, ErrInvalidID
	}
	// BSON dates keep milliseconds.
	patch.Now = patch.Now.Truncate(time.Millisecond)

	set := bson.D{
		{Key: "updatedAt", Value: bson.D{{Key: "$max", Value: bson.A{"$updatedAt", patch.Now}}}},
	}
	setLiteral := func(field string, v *string) {
		if v != nil {
			set = append(set, bson.E{Key: field, Value: bson.D{{Key: "$literal", Value: *v}}})
		}
	}
	setLiteral("name", patch.Name)
	setLiteral("description", patch.Description)
	setLiteral("category", patch.Category)
	setLiteral("priority", patch.Priority)
	setLiteral("color", patch.Color)
	if patch.Status != nil {
		status := string(*patch.Status)
		setLiteral("status", &status)
	}
	if patch.CompletedAt == CompletedAtStamp {
		set = append(set, bson.E{Key: "completedAt", Value: bson.D{
			{Key: "$ifNull", Value: bson.A{"$completedAt", patch.Now}},
		}})
	}

	pipeline := mongo.Pipeline{{{Key: "$set", Value: set}}}
	if patch.CompletedAt == CompletedAtClear {
		pipeline = append(pipeline, bson.D{{Key: "$unset", Value: "completedAt"}})
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	var doc taskDocument
	if err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, pipeline, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to update task: %w", err)
	}

	before := doc.toDomain()
	after := doc.toDomain()
	patch.Apply(after)
	return before, after, nil
}

// Delete permanently removes a task.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}

	result, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// GroupCount counts tasks per value of field, largest group first.
func (s *MongoStore) GroupCount(ctx context.Context, field string) ([]GroupCount, error) {
	if _, err := groupColumn(field); err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to group tasks by %s: %w", field, err)
	}
	defer cursor.Close(ctx)

	groups := make([]GroupCount, 0)
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode %s groups: %w", field, err)
	}
	return groups, nil
}

// Latest returns the n most recently created tasks.
func (s *MongoStore) Latest(ctx context.Context, n int) ([]*domain.Task, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(n))
	return s.find(ctx, bson.M{}, opts)
}

// EnsureCollection creates the collection and its indexes when missing.
func (s *MongoStore) EnsureCollection(ctx context.Context) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{"name": CollectionName})
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	if len(names) > 0 {
		return false, nil
	}

	if err := s.db.CreateCollection(ctx, CollectionName); err != nil {
		return false, fmt.Errorf("failed to create collection: %w", err)
	}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "priority", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return true, fmt.Errorf("failed to create indexes: %w", err)
	}
	return true, nil
}

// Collections lists the collections of the database.
func (s *MongoStore) Collections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

// Ping verifies the server is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) find(ctx context.Context, query any, opts *options.FindOptions) ([]*domain.Task, error) {
	cursor, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []taskDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}

	tasks := make([]*domain.Task, 0, len(docs))
	for i := range docs {
		tasks = append(tasks, docs[i].toDomain())
	}
	return tasks, nil
}
