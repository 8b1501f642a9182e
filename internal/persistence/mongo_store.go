package persistence

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a JobStore, MessageStore and ExecutionDetailStore backed by
// MongoDB. Records are kept in the collections "jobs", "messages" and
// "execution_details" of one database.
type MongoStore struct {
	jobs     *mongo.Collection
	messages *mongo.Collection
	details  *mongo.Collection
}

var (
	_ JobStore             = (*MongoStore)(nil)
	_ MessageStore         = (*MongoStore)(nil)
	_ ExecutionDetailStore = (*MongoStore)(nil)
)

// NewMongoStore creates a Mongo-backed store.
// dbName defaults to "herald" if empty.
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	if dbName == "" {
		dbName = "herald"
	}
	db := client.Database(dbName)
	return &MongoStore{
		jobs:     db.Collection("jobs"),
		messages: db.Collection("messages"),
		details:  db.Collection("execution_details"),
	}
}

// NewMongoPersistence returns a Persistence backed by one MongoStore.
func NewMongoPersistence(client *mongo.Client, dbName string) Persistence {
	s := NewMongoStore(client, dbName)
	return Persistence{Jobs: s, Messages: s, Details: s}
}

type mongoJobDoc struct {
	ID             string `bson:"_id"`
	EnvironmentID  string `bson:"environment_id"`
	TransactionID  string `bson:"transaction_id"`
	MergedDigestID string `bson:"merged_digest_id,omitempty"`
	Status         string `bson:"status"`
	CreatedAt      int64  `bson:"created_at"`
	Data           []byte `bson:"data"`
}

type mongoMessageDoc struct {
	ID            string `bson:"_id"`
	EnvironmentID string `bson:"environment_id"`
	JobID         string `bson:"job_id"`
	Data          []byte `bson:"data"`
}

type mongoDetailDoc struct {
	ID            string `bson:"_id"`
	EnvironmentID string `bson:"environment_id"`
	JobID         string `bson:"job_id"`
	CreatedAt     int64  `bson:"created_at"`
	Data          []byte `bson:"data"`
}

var jobSort = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

func newMongoJobDoc(job *Job) (mongoJobDoc, error) {
	data, err := encodeValue(job)
	if err != nil {
		return mongoJobDoc{}, err
	}
	return mongoJobDoc{
		ID:             job.ID,
		EnvironmentID:  job.EnvironmentID,
		TransactionID:  job.TransactionID,
		MergedDigestID: job.MergedDigestID,
		Status:         string(job.Status),
		CreatedAt:      job.CreatedAt.UnixNano(),
		Data:           data,
	}, nil
}

func (s *MongoStore) CreateJob(ctx context.Context, job *Job) error {
	doc, err := newMongoJobDoc(job)
	if err != nil {
		return err
	}
	_, err = s.jobs.InsertOne(ctx, doc)
	return err
}

func (s *MongoStore) UpdateJob(ctx context.Context, job *Job) error {
	doc, err := newMongoJobDoc(job)
	if err != nil {
		return err
	}
	res, err := s.jobs.ReplaceOne(ctx, bson.M{"_id": job.ID}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *MongoStore) FindJob(ctx context.Context, environmentID, id string) (*Job, error) {
	var doc mongoJobDoc
	err := s.jobs.FindOne(ctx, bson.M{"_id": id, "environment_id": environmentID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	job, err := decodeValue[Job](doc.Data)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *MongoStore) FindMergedDigestJobs(ctx context.Context, environmentID, digestJobID string) ([]*Job, error) {
	return s.findJobs(ctx, bson.M{
		"environment_id":   environmentID,
		"merged_digest_id": digestJobID,
		"status":           string(JobStatusMerged),
	})
}

func (s *MongoStore) ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error) {
	bfilter := bson.M{}
	if filter.EnvironmentID != "" {
		bfilter["environment_id"] = filter.EnvironmentID
	}
	if filter.TransactionID != "" {
		bfilter["transaction_id"] = filter.TransactionID
	}
	if filter.Status != "" {
		bfilter["status"] = string(filter.Status)
	}
	return s.findJobs(ctx, bfilter)
}

func (s *MongoStore) findJobs(ctx context.Context, filter bson.M) ([]*Job, error) {
	cur, err := s.jobs.Find(ctx, filter, options.Find().SetSort(jobSort))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var jobs []*Job
	for cur.Next(ctx) {
		var doc mongoJobDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		job, err := decodeValue[Job](doc.Data)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, &job)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *MongoStore) CreateMessage(ctx context.Context, msg *Message) error {
	data, err := encodeValue(msg)
	if err != nil {
		return err
	}
	_, err = s.messages.InsertOne(ctx, mongoMessageDoc{
		ID:            msg.ID,
		EnvironmentID: msg.EnvironmentID,
		JobID:         msg.JobID,
		Data:          data,
	})
	return err
}

func (s *MongoStore) UpdateMessage(ctx context.Context, msg *Message) error {
	data, err := encodeValue(msg)
	if err != nil {
		return err
	}
	res, err := s.messages.UpdateByID(ctx, msg.ID, bson.M{"$set": bson.M{"data": data}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (s *MongoStore) FindMessageByJob(ctx context.Context, environmentID, jobID string) (*Message, error) {
	var doc mongoMessageDoc
	err := s.messages.FindOne(ctx, bson.M{"environment_id": environmentID, "job_id": jobID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	msg, err := decodeValue[Message](doc.Data)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MongoStore) CreateExecutionDetail(ctx context.Context, d *ExecutionDetail) error {
	data, err := encodeValue(d)
	if err != nil {
		return err
	}
	_, err = s.details.InsertOne(ctx, mongoDetailDoc{
		ID:            d.ID,
		EnvironmentID: d.EnvironmentID,
		JobID:         d.JobID,
		CreatedAt:     d.CreatedAt.UnixNano(),
		Data:          data,
	})
	return err
}

func (s *MongoStore) ListExecutionDetails(ctx context.Context, environmentID, jobID string) ([]*ExecutionDetail, error) {
	cur, err := s.details.Find(ctx,
		bson.M{"environment_id": environmentID, "job_id": jobID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*ExecutionDetail
	for cur.Next(ctx) {
		var doc mongoDetailDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		d, err := decodeValue[ExecutionDetail](doc.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
