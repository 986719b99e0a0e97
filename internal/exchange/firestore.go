package exchange

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/authbridge/internal/autherr"
	"github.com/dgellow/authbridge/internal/crypto"
	"github.com/dgellow/authbridge/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// maxBatchSize is the Firestore batch write limit
const maxBatchSize = 500

// FirestoreStore keeps entries in a Firestore collection, one document per
// exchange key. Tokens are encrypted at rest.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	encryptor  crypto.Encryptor
	ttl        time.Duration
	now        func() time.Time
}

var _ Store = (*FirestoreStore)(nil)

// tokenDoc represents a stored token document in Firestore
type tokenDoc struct {
	Token     string `firestore:"token"`
	CreatedAt int64  `firestore:"created_at"`
	ExpiresAt int64  `firestore:"expires_at"`
}

func (d tokenDoc) entry() Entry {
	e := Entry{Token: d.Token, CreatedAt: time.Unix(d.CreatedAt, 0)}
	if d.ExpiresAt > 0 {
		e.ExpiresAt = time.Unix(d.ExpiresAt, 0)
	}
	return e
}

// NewFirestoreClient opens a client on the given database; "" and
// "(default)" select the default database. FIRESTORE_EMULATOR_HOST is honored
// by the client library.
func NewFirestoreClient(ctx context.Context, projectID, database string, opts ...option.ClientOption) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}

	var client *firestore.Client
	var err error
	if database != "" && database != firestore.DefaultDatabaseID {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database, opts...)
	} else {
		client, err = firestore.NewClient(ctx, projectID, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// NewFirestoreStore creates a FirestoreStore on an existing client.
func NewFirestoreStore(client *firestore.Client, collection string, encryptor crypto.Encryptor, ttl time.Duration) (*FirestoreStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	return &FirestoreStore{
		client:     client,
		collection: collection,
		encryptor:  encryptor,
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

func (s *FirestoreStore) Put(ctx context.Context, key, token string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	sealed, err := s.encryptor.Encrypt(token)
	if err != nil {
		return fmt.Errorf("encrypting token: %w", err)
	}

	e := newEntry(sealed, s.now(), s.ttl)
	doc := tokenDoc{Token: e.Token, CreatedAt: e.CreatedAt.Unix()}
	if !e.ExpiresAt.IsZero() {
		doc.ExpiresAt = e.ExpiresAt.Unix()
	}

	if _, err := s.client.Collection(s.collection).Doc(key).Set(ctx, doc); err != nil {
		return autherr.StoreUnavailable("put", err)
	}
	return nil
}

// Consume reads and deletes the document inside one transaction. A
// concurrent consumer either commits first or sees the document gone.
func (s *FirestoreStore) Consume(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	ref := s.client.Collection(s.collection).Doc(key)
	var sealed string
	var found bool

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		sealed, found = "", false

		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return fmt.Errorf("failed to get token: %w", err)
		}

		var d tokenDoc
		if err := doc.DataTo(&d); err != nil {
			return fmt.Errorf("failed to unmarshal token: %w", err)
		}
		if err := tx.Delete(ref); err != nil {
			return err
		}
		if d.entry().Expired(s.now()) {
			return nil
		}
		sealed, found = d.Token, true
		return nil
	})
	if err != nil {
		return "", false, autherr.StoreUnavailable("consume", err)
	}
	if !found {
		return "", false, nil
	}

	token, err := s.encryptor.Decrypt(sealed)
	if err != nil {
		return "", false, fmt.Errorf("decrypting token: %w", err)
	}
	return token, true, nil
}

func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := s.client.Collection(s.collection).Doc(key).Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return autherr.StoreUnavailable("delete", err)
	}
	return nil
}

// DeleteExpired removes all expired documents in batches
func (s *FirestoreStore) DeleteExpired(ctx context.Context) (int, error) {
	now := s.now().Unix()
	iter := s.client.Collection(s.collection).
		Where("expires_at", ">", 0).
		Where("expires_at", "<=", now).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	batch := s.client.Batch()
	batchSize := 0

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, autherr.StoreUnavailable("iterate expired tokens", err)
		}

		batch.Delete(doc.Ref)
		batchSize++
		count++

		if batchSize >= maxBatchSize {
			if _, err := batch.Commit(ctx); err != nil {
				return count, autherr.StoreUnavailable("commit batch", err)
			}
			batch = s.client.Batch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count, autherr.StoreUnavailable("commit final batch", err)
		}
	}

	if count > 0 {
		log.LogDebugWithFields("firestore", "Deleted expired exchange tokens", map[string]any{
			"collection": s.collection,
			"count":      count,
		})
	}
	return count, nil
}
