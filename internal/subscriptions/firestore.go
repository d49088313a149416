package subscriptions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/avast/retry-go"
	"github.com/resq-app/resq-backend/internal/constants"
	"github.com/resq-app/resq-backend/internal/logging"
	"github.com/resq-app/resq-backend/internal/store"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fsSubscription struct {
	UserID    string    `firestore:"userId"`
	Endpoint  string    `firestore:"endpoint"`
	P256dh    string    `firestore:"p256dh"`
	Auth      string    `firestore:"auth"`
	Enabled   bool      `firestore:"enabled"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (f *fsSubscription) toSubscription() Subscription {
	return Subscription{
		UserID:    f.UserID,
		Endpoint:  f.Endpoint,
		Keys:      Keys{P256dh: f.P256dh, Auth: f.Auth},
		Enabled:   f.Enabled,
		CreatedAt: f.CreatedAt.UTC(),
		UpdatedAt: f.UpdatedAt.UTC(),
	}
}

// Firestore stores subscriptions as documents whose id is derived from (userID, endpoint).
type Firestore struct {
	store store.Storer
}

// NewFirestore creates the Firestore-backed store.
func NewFirestore(s store.Storer) *Firestore {
	return &Firestore{store: s}
}

// DocumentID Deterministic document id of the (userID, endpoint) pair.
func DocumentID(userID, endpoint string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + endpoint))
	return hex.EncodeToString(sum[:])
}

// Close is a no-op, the Firestore client is owned by the caller.
func (f *Firestore) Close() error {
	return nil
}

func (f *Firestore) transact(ctx context.Context, fn func(context.Context, *firestore.Transaction) error) error {
	logger := logging.FromContext(ctx).Named("subscriptions.Firestore")

	return retry.Do(
		func() error {
			return f.store.RunTransaction(ctx, fn)
		},
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return status.Code(err) == codes.Aborted
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Debugf("Retrying contended transaction (%d): %v", n, err)
		}),
	)
}

// Subscribe upserts the (userID, endpoint) document.
func (f *Firestore) Subscribe(ctx context.Context, userID, endpoint string, keys Keys) (*Subscription, error) {
	if err := checkKey(userID, endpoint); err != nil {
		return nil, err
	}
	if err := checkKeys(keys); err != nil {
		return nil, err
	}

	doc := f.store.Doc(constants.CollectionPushSubscriptions, DocumentID(userID, endpoint))

	var result fsSubscription
	err := f.transact(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ts := timeNow()

		snap, err := tx.Get(doc)
		switch {
		case err == nil:
			if err := snap.DataTo(&result); err != nil {
				return err
			}
			result.P256dh = keys.P256dh
			result.Auth = keys.Auth
			result.UpdatedAt = ts

		case status.Code(err) == codes.NotFound:
			result = fsSubscription{
				UserID:    userID,
				Endpoint:  endpoint,
				P256dh:    keys.P256dh,
				Auth:      keys.Auth,
				Enabled:   true,
				CreatedAt: ts,
				UpdatedAt: ts,
			}

		default:
			return fmt.Errorf("Error while querying Firestore: %v", err)
		}

		return tx.Set(doc, result)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}

	sub := result.toSubscription()
	return &sub, nil
}

// Unsubscribe deletes the document.
func (f *Firestore) Unsubscribe(ctx context.Context, userID, endpoint string) (bool, error) {
	if err := checkKey(userID, endpoint); err != nil {
		return false, err
	}

	doc := f.store.Doc(constants.CollectionPushSubscriptions, DocumentID(userID, endpoint))

	var removed bool
	err := f.transact(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		removed = false

		if _, err := tx.Get(doc); err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return fmt.Errorf("Error while querying Firestore: %v", err)
		}

		removed = true
		return tx.Delete(doc)
	})
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	return removed, nil
}

// SetEnabled toggles one or all of the user's documents.
func (f *Firestore) SetEnabled(ctx context.Context, userID, endpoint string, enabled bool) (bool, error) {
	if err := checkUser(userID); err != nil {
		return false, err
	}

	var updated bool
	err := f.transact(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		updated = false

		var refs []*firestore.DocumentRef
		if endpoint == AllEndpoints {
			snaps, err := tx.Documents(f.store.Find(constants.CollectionPushSubscriptions, "userId", userID)).GetAll()
			if err != nil {
				return fmt.Errorf("Error while querying Firestore: %v", err)
			}
			for _, snap := range snaps {
				refs = append(refs, snap.Ref)
			}
		} else {
			doc := f.store.Doc(constants.CollectionPushSubscriptions, DocumentID(userID, endpoint))
			if _, err := tx.Get(doc); err != nil {
				if status.Code(err) == codes.NotFound {
					return nil
				}
				return fmt.Errorf("Error while querying Firestore: %v", err)
			}
			refs = append(refs, doc)
		}

		ts := timeNow()
		for _, ref := range refs {
			err := tx.Update(ref, []firestore.Update{
				{Path: "enabled", Value: enabled},
				{Path: "updatedAt", Value: ts},
			})
			if err != nil {
				return err
			}
		}

		updated = len(refs) > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("update subscription: %w", err)
	}
	return updated, nil
}

// ListEnabled returns the user's enabled documents.
func (f *Firestore) ListEnabled(ctx context.Context, userID string) ([]Subscription, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}

	iter := f.store.Find(constants.CollectionPushSubscriptions, "userId", userID).
		Where("enabled", "==", true).
		Documents(ctx)
	defer iter.Stop()

	var subs []Subscription
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list subscriptions: %w", err)
		}

		var rec fsSubscription
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("list subscriptions: %w", err)
		}
		subs = append(subs, rec.toSubscription())
	}

	sort.Slice(subs, func(a, b int) bool {
		return subs[a].Endpoint < subs[b].Endpoint
	})
	return subs, nil
}
