package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is an implementation of Store backed by a Firestore
// collection, suitable for smaller deployments where a dedicated Redis
// instance would be overkill. One document exists per processed identifier.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreClient creates a Firestore client, optionally authenticating
// with a service-account credentials file.
func NewFirestoreClient(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, errors.New("firestore project id cannot be empty")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return client, nil
}

// NewFirestoreStore creates a new FirestoreStore over the given collection.
func NewFirestoreStore(client *firestore.Client, collectionName string) (*FirestoreStore, error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if collectionName == "" {
		return nil, errors.New("firestore collection name cannot be empty")
	}
	return &FirestoreStore{client: client, collection: collectionName}, nil
}

// Seen reports whether a document exists for the identifier.
func (s *FirestoreStore) Seen(ctx context.Context, id string) (bool, error) {
	_, err := s.client.Collection(s.collection).Doc(docID(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("firestore get failed for id %s: %w", id, err)
	}
	return true, nil
}

// Mark writes a document for the identifier. The write is confirmed before
// returning, preserving the append-then-continue durability contract.
func (s *FirestoreStore) Mark(ctx context.Context, id string) error {
	_, err := s.client.Collection(s.collection).Doc(docID(id)).Set(ctx, map[string]interface{}{
		"messageId":   id,
		"processedAt": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to mark id %s in firestore: %w", id, err)
	}
	return nil
}

// Close is a no-op; the Firestore client's lifecycle is managed externally.
func (s *FirestoreStore) Close() error {
	return nil
}

// docID makes a message identifier safe for use as a Firestore document name,
// which must not contain forward slashes.
func docID(id string) string {
	out := []rune(id)
	for i, r := range out {
		if r == '/' {
			out[i] = '_'
		}
	}
	return string(out)
}
