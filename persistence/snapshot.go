package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/harness/flow"
)

const defaultSnapshotCollection = "harness_flow_snapshots"

type (
	// SnapshotStore saves and loads flow.Snapshot values, one document per
	// run, keyed by RunID.
	SnapshotStore struct {
		coll    *mongo.Collection
		timeout time.Duration
	}

	snapshotDoc struct {
		RunID        string            `bson:"_id"`
		Status       flow.Status       `bson:"status"`
		State        map[string]any    `bson:"state,omitempty"`
		Outputs      map[string]any    `bson:"outputs,omitempty"`
		NodeStatus   map[string]string `bson:"node_status,omitempty"`
		EdgeStatus   map[string]bool   `bson:"edge_status,omitempty"`
		LoopCounters map[string]int    `bson:"loop_counters,omitempty"`
		Inbox        []string          `bson:"inbox,omitempty"`
		StartedAt    time.Time         `bson:"started_at"`
		UpdatedAt    time.Time         `bson:"updated_at"`
	}
)

// NewSnapshotStore builds a SnapshotStore, ensuring the supporting index
// exists.
func NewSnapshotStore(opts Options) (*SnapshotStore, error) {
	coll, timeout, err := opts.collection(defaultSnapshotCollection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: -1}},
	}); err != nil {
		return nil, err
	}
	return &SnapshotStore{coll: coll, timeout: timeout}, nil
}

// Save upserts snap, keyed by its RunID.
func (s *SnapshotStore) Save(ctx context.Context, snap *flow.Snapshot) error {
	if snap.RunID == "" {
		return errors.New("persistence: snapshot RunID is required")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	doc := toSnapshotDoc(snap)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.RunID}, doc, options.Replace().SetUpsert(true))
	return err
}

// Load returns the snapshot saved for runID, or ErrNotFound.
func (s *SnapshotStore) Load(ctx context.Context, runID string) (*flow.Snapshot, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	var doc snapshotDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": runID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromSnapshotDoc(doc), nil
}

// Delete removes the snapshot saved for runID. Deleting an absent runID
// is a no-op.
func (s *SnapshotStore) Delete(ctx context.Context, runID string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": runID})
	return err
}

func toSnapshotDoc(snap *flow.Snapshot) snapshotDoc {
	doc := snapshotDoc{
		RunID:        snap.RunID,
		Status:       snap.Status,
		State:        snap.State,
		Outputs:      snap.Outputs,
		EdgeStatus:   snap.EdgeStatus,
		LoopCounters: snap.LoopCounters,
		Inbox:        snap.Inbox,
		StartedAt:    snap.StartedAt,
		UpdatedAt:    snap.UpdatedAt,
	}
	if len(snap.NodeStatus) > 0 {
		doc.NodeStatus = make(map[string]string, len(snap.NodeStatus))
		for k, v := range snap.NodeStatus {
			doc.NodeStatus[k] = string(v)
		}
	}
	return doc
}

func fromSnapshotDoc(doc snapshotDoc) *flow.Snapshot {
	snap := &flow.Snapshot{
		RunID:        doc.RunID,
		Status:       doc.Status,
		State:        doc.State,
		Outputs:      doc.Outputs,
		EdgeStatus:   doc.EdgeStatus,
		LoopCounters: doc.LoopCounters,
		Inbox:        doc.Inbox,
		StartedAt:    doc.StartedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
	if len(doc.NodeStatus) > 0 {
		snap.NodeStatus = make(map[string]flow.NodeStatus, len(doc.NodeStatus))
		for k, v := range doc.NodeStatus {
			snap.NodeStatus[k] = flow.NodeStatus(v)
		}
	}
	return snap
}
