package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/harness/bus"
)

const defaultSessionCollection = "harness_paused_sessions"

type (
	// SessionStore saves and loads bus.PausedSession records, one document
	// per session, keyed by SessionID, so a resumable abort survives a
	// process restart until a matching Resume call is issued against a new
	// process.
	SessionStore struct {
		coll    *mongo.Collection
		timeout time.Duration
	}

	pausedSessionDoc struct {
		SessionID        string         `bson:"_id"`
		FlowName         string         `bson:"flow_name"`
		CurrentNodeID    string         `bson:"current_node_id"`
		CurrentNodeIndex int            `bson:"current_node_index"`
		Outputs          map[string]any `bson:"outputs,omitempty"`
		PendingMessages  []string       `bson:"pending_messages,omitempty"`
		Reason           string         `bson:"reason,omitempty"`
		SavedAt          time.Time      `bson:"saved_at"`
	}
)

// NewSessionStore builds a SessionStore, ensuring the supporting index
// exists.
func NewSessionStore(opts Options) (*SessionStore, error) {
	coll, timeout, err := opts.collection(defaultSessionCollection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "saved_at", Value: -1}},
	}); err != nil {
		return nil, err
	}
	return &SessionStore{coll: coll, timeout: timeout}, nil
}

// Save upserts ps, keyed by its SessionID.
func (s *SessionStore) Save(ctx context.Context, ps *bus.PausedSession) error {
	if ps.SessionID == "" {
		return errors.New("persistence: paused session SessionID is required")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	doc := toPausedSessionDoc(ps)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.SessionID}, doc, options.Replace().SetUpsert(true))
	return err
}

// Load returns the paused session saved for sessionID, or ErrNotFound.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*bus.PausedSession, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	var doc pausedSessionDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromPausedSessionDoc(doc), nil
}

// Delete removes the paused session saved for sessionID. Deleting an absent
// sessionID is a no-op.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": sessionID})
	return err
}

func toPausedSessionDoc(ps *bus.PausedSession) pausedSessionDoc {
	return pausedSessionDoc{
		SessionID:        ps.SessionID,
		FlowName:         ps.FlowName,
		CurrentNodeID:    ps.CurrentNodeID,
		CurrentNodeIndex: ps.CurrentNodeIndex,
		Outputs:          ps.Outputs,
		PendingMessages:  ps.PendingMessages,
		Reason:           ps.Reason,
		SavedAt:          time.Now().UTC(),
	}
}

func fromPausedSessionDoc(doc pausedSessionDoc) *bus.PausedSession {
	return &bus.PausedSession{
		SessionID:        doc.SessionID,
		FlowName:         doc.FlowName,
		CurrentNodeID:    doc.CurrentNodeID,
		CurrentNodeIndex: doc.CurrentNodeIndex,
		Outputs:          doc.Outputs,
		PendingMessages:  doc.PendingMessages,
		Reason:           doc.Reason,
	}
}
