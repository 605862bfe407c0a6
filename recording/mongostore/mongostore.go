// Package mongostore implements recording.Store on top of MongoDB, the
// durable backend spec.md §4.2 requires ("storage must survive process
// restarts when backed by a durable implementation"). It is grounded on
// the teacher's features/runlog/mongo/clients/mongo client: one document
// per recording, index on the fields queried, helper methods ported
// directly onto the v2 driver's collection/cursor API this module's go.mod
// already pins.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/harness/recording"
	"goa.design/harness/signal"
)

const (
	defaultCollection = "harness_recordings"
	defaultTimeout    = 5 * time.Second
)

type (
	// Options configures Store.
	Options struct {
		Client     *mongo.Client
		Database   string
		Collection string
		Timeout    time.Duration
	}

	// Store implements recording.Store against a MongoDB collection.
	Store struct {
		client  *mongo.Client
		coll    *mongo.Collection
		timeout time.Duration
	}

	signalDoc struct {
		ID        string    `bson:"id"`
		Name      string    `bson:"name"`
		Payload   any       `bson:"payload"`
		Timestamp time.Time `bson:"timestamp"`
		Source    *sourceDoc `bson:"source,omitempty"`
	}

	sourceDoc struct {
		Agent  string `bson:"agent,omitempty"`
		Node   string `bson:"node,omitempty"`
		Parent string `bson:"parent,omitempty"`
	}

	checkpointDoc struct {
		Name  string `bson:"name"`
		Index int    `bson:"index"`
	}

	recordingDoc struct {
		ID          bson.ObjectID   `bson:"_id,omitempty"`
		HarnessType string          `bson:"harness_type"`
		Tags        []string        `bson:"tags"`
		Metadata    map[string]any  `bson:"metadata,omitempty"`
		CreatedAt   time.Time       `bson:"created_at"`
		FinalizedAt *time.Time      `bson:"finalized_at,omitempty"`
		DurationMS  int64           `bson:"duration_ms,omitempty"`
		Signals     []signalDoc     `bson:"signals"`
		Checkpoints []checkpointDoc `bson:"checkpoints"`
	}
)

// New builds a Mongo-backed recording.Store, ensuring the supporting
// indexes exist.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	coll := opts.Client.Database(opts.Database).Collection(collName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "harness_type", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return nil, fmt.Errorf("mongostore: ensure indexes: %w", err)
	}
	return &Store{client: opts.Client, coll: coll, timeout: timeout}, nil
}

// Name satisfies the clue health.Pinger identity contract the teacher's
// Mongo clients implement.
func (s *Store) Name() string { return "recording-mongo" }

// Ping satisfies health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Create(ctx context.Context, opts recording.CreateOptions) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	doc := recordingDoc{
		HarnessType: opts.HarnessType,
		Tags:        opts.Tags,
		Metadata:    opts.Metadata,
		CreatedAt:   time.Now().UTC(),
		Signals:     []signalDoc{},
		Checkpoints: []checkpointDoc{},
	}
	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", err
	}
	oid, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return "", fmt.Errorf("mongostore: unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

func (s *Store) Append(ctx context.Context, id string, sig signal.Signal) error {
	return s.AppendBatch(ctx, id, []signal.Signal{sig})
}

func (s *Store) AppendBatch(ctx context.Context, id string, signals []signal.Signal) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return recording.ErrNotFound
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	docs := make([]any, len(signals))
	for i, sg := range signals {
		docs[i] = toSignalDoc(sg)
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "finalized_at": bson.M{"$exists": false}},
		bson.M{"$push": bson.M{"signals": bson.M{"$each": docs}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return s.notFoundOrFinalized(ctx, oid)
	}
	return nil
}

func (s *Store) Checkpoint(ctx context.Context, id string, name string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return recording.ErrNotFound
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc recordingDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return recording.ErrNotFound
		}
		return err
	}
	if doc.FinalizedAt != nil {
		return recording.ErrFinalized
	}
	cp := checkpointDoc{Name: name, Index: len(doc.Signals)}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "finalized_at": bson.M{"$exists": false}},
		bson.M{"$push": bson.M{"checkpoints": cp}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return s.notFoundOrFinalized(ctx, oid)
	}
	return nil
}

func (s *Store) Finalize(ctx context.Context, id string, durationMS int64) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return recording.ErrNotFound
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "finalized_at": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"finalized_at": now, "duration_ms": durationMS}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return s.notFoundOrFinalized(ctx, oid)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (recording.Recording, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return recording.Recording{}, recording.ErrNotFound
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc recordingDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return recording.Recording{}, recording.ErrNotFound
		}
		return recording.Recording{}, err
	}
	return fromRecordingDoc(doc), nil
}

func (s *Store) LoadSignals(ctx context.Context, id string, opts recording.LoadSignalsOptions) ([]signal.Signal, error) {
	rec, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return recording.FilterSignals(rec.Signals, opts), nil
}

func (s *Store) List(ctx context.Context, filter recording.ListFilter) ([]recording.Recording, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := bson.M{}
	if filter.HarnessType != "" {
		query["harness_type"] = filter.HarnessType
	}
	if len(filter.Tags) > 0 {
		query["tags"] = bson.M{"$all": filter.Tags}
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Offset > 0 {
		findOpts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		findOpts.SetLimit(int64(filter.Limit))
	}

	cur, err := s.coll.Find(ctx, query, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []recording.Recording
	for cur.Next(ctx) {
		var doc recordingDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, fromRecordingDoc(doc))
	}
	return out, cur.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err = s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	return n > 0, err
}

func (s *Store) Clear(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.DeleteMany(ctx, bson.M{})
	return err
}

func (s *Store) notFoundOrFinalized(ctx context.Context, oid bson.ObjectID) error {
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if n == 0 {
		return recording.ErrNotFound
	}
	return recording.ErrFinalized
}

func toSignalDoc(sg signal.Signal) signalDoc {
	d := signalDoc{ID: sg.ID, Name: sg.Name, Payload: sg.Payload, Timestamp: sg.Timestamp}
	if sg.Source != nil {
		d.Source = &sourceDoc{Agent: sg.Source.Agent, Node: sg.Source.Node, Parent: sg.Source.Parent}
	}
	return d
}

func fromSignalDoc(d signalDoc) signal.Signal {
	sg := signal.Signal{ID: d.ID, Name: d.Name, Payload: d.Payload, Timestamp: d.Timestamp}
	if d.Source != nil {
		sg.Source = &signal.Source{Agent: d.Source.Agent, Node: d.Source.Node, Parent: d.Source.Parent}
	}
	return sg
}

func fromRecordingDoc(doc recordingDoc) recording.Recording {
	rec := recording.Recording{
		ID:          doc.ID.Hex(),
		HarnessType: doc.HarnessType,
		Tags:        doc.Tags,
		Metadata:    doc.Metadata,
		CreatedAt:   doc.CreatedAt,
		FinalizedAt: doc.FinalizedAt,
		DurationMS:  doc.DurationMS,
	}
	for _, sd := range doc.Signals {
		rec.Signals = append(rec.Signals, fromSignalDoc(sd))
	}
	for _, cp := range doc.Checkpoints {
		rec.Checkpoints = append(rec.Checkpoints, recording.Checkpoint{Name: cp.Name, Index: cp.Index})
	}
	return rec
}
