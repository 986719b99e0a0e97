// Package region records the region a signed-in user registered.
package region

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/authbridge/internal/autherr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Store saves a user's region. The region is opaque JSON from the client.
type Store interface {
	Save(ctx context.Context, uid string, region any) error
	Get(ctx context.Context, uid string) (any, bool, error)
}

// MemoryStore keeps regions in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	regions map[string]any
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{regions: make(map[string]any)}
}

func (s *MemoryStore) Save(_ context.Context, uid string, region any) error {
	if uid == "" {
		return autherr.Malformed("uid is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions[uid] = region
	return nil
}

func (s *MemoryStore) Get(_ context.Context, uid string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regions[uid]
	return r, ok, nil
}

// FirestoreStore keeps one document per user in a collection
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

var _ Store = (*FirestoreStore)(nil)

type regionDoc struct {
	Region    any   `firestore:"region"`
	UpdatedAt int64 `firestore:"updated_at"`
}

// NewFirestoreStore creates a FirestoreStore on an existing client
func NewFirestoreStore(client *firestore.Client, collection string) (*FirestoreStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	return &FirestoreStore{client: client, collection: collection, now: time.Now}, nil
}

func (s *FirestoreStore) Save(ctx context.Context, uid string, region any) error {
	if uid == "" {
		return autherr.Malformed("uid is required")
	}
	doc := regionDoc{Region: region, UpdatedAt: s.now().Unix()}
	if _, err := s.client.Collection(s.collection).Doc(uid).Set(ctx, doc); err != nil {
		return autherr.StoreUnavailable("save region", err)
	}
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, uid string) (any, bool, error) {
	snap, err := s.client.Collection(s.collection).Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, false, nil
		}
		return nil, false, autherr.StoreUnavailable("get region", err)
	}
	var doc regionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal region: %w", err)
	}
	return doc.Region, true, nil
}
