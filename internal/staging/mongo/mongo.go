// Package mongo implements the staging RecordStore on MongoDB. Each dataset
// gets its own collection, the same layout the legacy scripts produced,
// except the collection name now comes from the router instead of inline
// string matching.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"sheetpipe/internal/core"
	"sheetpipe/internal/staging"
)

// Store implements staging.RecordStore on a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ staging.RecordStore = (*Store)(nil)

// rawDoc is the staged document shape.
type rawDoc struct {
	JobID      string    `bson:"job_id"`
	Dataset    string    `bson:"dataset"`
	Row        int       `bson:"row"`
	SourceFile string    `bson:"source_file"`
	Headers    []string  `bson:"headers"`
	Values     []string  `bson:"values"`
	StagedAt   time.Time `bson:"staged_at"`
}

// Connect dials MongoDB and prepares the staging database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(cctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// EnsureIndexes creates the per-dataset indexes used by batch fetches.
// Index creation is idempotent; this runs at startup.
func (s *Store) EnsureIndexes(ctx context.Context, datasets []core.Dataset) error {
	for _, d := range datasets {
		coll := s.db.Collection(d.String())
		_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "job_id", Value: 1}, {Key: "row", Value: 1}}},
			{Keys: bson.D{{Key: "staged_at", Value: 1}}},
		})
		if err != nil {
			return fmt.Errorf("create indexes for %s: %w", d, err)
		}
	}
	slog.InfoContext(ctx, "Staging indexes ensured", "datasets", len(datasets))
	return nil
}

// StageRecords bulk-inserts raw records into the dataset's collection.
func (s *Store) StageRecords(ctx context.Context, records []core.RawRecord) error {
	if len(records) == 0 {
		return nil
	}
	dataset := records[0].Dataset
	now := time.Now().UTC()

	docs := make([]any, 0, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("invalid record at row %d: %w", r.Row, err)
		}
		if r.Dataset != dataset {
			return fmt.Errorf("mixed datasets in one batch: %s and %s", dataset, r.Dataset)
		}
		docs = append(docs, rawDoc{
			JobID:      r.JobID,
			Dataset:    r.Dataset.String(),
			Row:        r.Row,
			SourceFile: r.SourceFile,
			Headers:    r.Headers,
			Values:     r.Values,
			StagedAt:   now,
		})
	}

	// Ordered inserts keep row order stable for the cursor-based fetch.
	_, err := s.db.Collection(dataset.String()).InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("insert %d records into %s: %w", len(docs), dataset, err)
	}

	slog.InfoContext(ctx, "Records staged",
		"dataset", dataset.String(),
		"job_id", records[0].JobID,
		"count", len(docs))

	return nil
}

// FetchBatch returns up to limit records with Row > afterRow, in row order.
func (s *Store) FetchBatch(ctx context.Context, dataset core.Dataset, jobID string, afterRow, limit int) ([]core.RawRecord, error) {
	filter := bson.M{"job_id": jobID, "row": bson.M{"$gt": afterRow}}
	opts := options.Find().
		SetSort(bson.D{{Key: "row", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.db.Collection(dataset.String()).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find batch for job %s: %w", jobID, err)
	}
	defer cursor.Close(ctx)

	var out []core.RawRecord
	for cursor.Next(ctx) {
		var doc rawDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode staged record: %w", err)
		}
		out = append(out, core.RawRecord{
			JobID:      doc.JobID,
			Dataset:    core.Dataset(doc.Dataset),
			Row:        doc.Row,
			SourceFile: doc.SourceFile,
			Headers:    doc.Headers,
			Values:     doc.Values,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch for job %s: %w", jobID, err)
	}
	return out, nil
}

// CountJob returns the number of staged records for a job.
func (s *Store) CountJob(ctx context.Context, dataset core.Dataset, jobID string) (int64, error) {
	n, err := s.db.Collection(dataset.String()).CountDocuments(ctx, bson.M{"job_id": jobID})
	if err != nil {
		return 0, fmt.Errorf("count job %s: %w", jobID, err)
	}
	return n, nil
}

// DeleteJob removes all staged records of a job.
func (s *Store) DeleteJob(ctx context.Context, dataset core.Dataset, jobID string) error {
	res, err := s.db.Collection(dataset.String()).DeleteMany(ctx, bson.M{"job_id": jobID})
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	slog.InfoContext(ctx, "Staged records deleted",
		"dataset", dataset.String(),
		"job_id", jobID,
		"deleted", res.DeletedCount)
	return nil
}

// Ping verifies the connection for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.client.Ping(cctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
