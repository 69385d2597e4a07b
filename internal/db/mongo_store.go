package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sail-lab/intact-server/internal/services"
)

// MongoStore keeps studies and tests in two collections, matching the
// document layout the CSV exports expect. A unique index on study_id is
// created at startup as defense-in-depth alongside the generator check.
type MongoStore struct {
	client  *mongo.Client
	studies *mongo.Collection
	tests   *mongo.Collection
}

// testDoc mirrors services.Test with the result payload held as JSON text,
// so document shape stays identical across the sqlite and mongo stores.
type testDoc struct {
	TestID                  string    `bson:"test_id"`
	StudyID                 string    `bson:"study_id"`
	TestType                string    `bson:"test_type"`
	TimeStarted             time.Time `bson:"time_started"`
	TimeElapsedMilliseconds int       `bson:"time_elapsed_milliseconds"`
	DeviceInfo              string    `bson:"device_info"`
	Result                  string    `bson:"result"`
	CreatedAt               time.Time `bson:"created_at"`
}

func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	database := client.Database(dbName)
	s := &MongoStore{
		client:  client,
		studies: database.Collection("studies"),
		tests:   database.Collection("tests"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.studies.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "study_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create study_id index: %w", err)
	}
	_, err = s.tests.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "test_type", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create test_type index: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) AddStudies(studies []*services.Study) error {
	ctx, cancel := s.opCtx()
	defer cancel()
	docs := make([]any, 0, len(studies))
	for _, st := range studies {
		docs = append(docs, bson.M{
			"study_id":       st.StudyID,
			"participant_id": st.ParticipantID,
			"url":            st.URL,
			"study_type":     string(st.StudyType),
			"created_at":     time.Now().UTC(),
		})
	}
	// Ordered insert: the first failure aborts the batch.
	_, err := s.studies.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("insert studies: %w", err)
	}
	return nil
}

func (s *MongoStore) GetStudy(id string) (*services.Study, error) {
	ctx, cancel := s.opCtx()
	defer cancel()
	var st services.Study
	err := s.studies.FindOne(ctx, bson.M{"study_id": id}).Decode(&st)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *MongoStore) ListStudies() ([]*services.Study, error) {
	ctx, cancel := s.opCtx()
	defer cancel()
	cur, err := s.studies.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*services.Study{}
	for cur.Next(ctx) {
		var st services.Study
		if err := cur.Decode(&st); err != nil {
			return nil, err
		}
		out = append(out, &st)
	}
	return out, cur.Err()
}

func (s *MongoStore) AddTest(t *services.Test) error {
	ctx, cancel := s.opCtx()
	defer cancel()
	doc := testDoc{
		TestID:                  t.TestID,
		StudyID:                 t.StudyID,
		TestType:                string(t.TestType),
		TimeStarted:             t.TimeStarted.UTC(),
		TimeElapsedMilliseconds: t.TimeElapsedMilliseconds,
		DeviceInfo:              t.DeviceInfo,
		Result:                  string(t.Result),
		CreatedAt:               time.Now().UTC(),
	}
	if _, err := s.tests.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert test %s: %w", t.TestID, err)
	}
	return nil
}

func (s *MongoStore) ListTestsByType(tt services.TestType) ([]*services.Test, error) {
	ctx, cancel := s.opCtx()
	defer cancel()
	cur, err := s.tests.Find(ctx, bson.M{"test_type": string(tt)}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*services.Test{}
	for cur.Next(ctx) {
		var doc testDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, &services.Test{
			TestID:                  doc.TestID,
			StudyID:                 doc.StudyID,
			TestType:                services.TestType(doc.TestType),
			TimeStarted:             doc.TimeStarted,
			TimeElapsedMilliseconds: doc.TimeElapsedMilliseconds,
			DeviceInfo:              doc.DeviceInfo,
			Result:                  json.RawMessage(doc.Result),
		})
	}
	return out, cur.Err()
}

func (s *MongoStore) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
