package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

const (
	platformFCM = "fcm"
	platformWeb = "web"
)

// FirestoreStore implements dispatch.TokenStore using Google Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// deviceRecord is the internal DB representation.
// It holds EITHER an FCM token OR a web subscription.
type deviceRecord struct {
	Platform        string                        `firestore:"platform"`
	UserID          string                        `firestore:"user_id"`
	Token           string                        `firestore:"fcm_token,omitempty"`
	WebSubscription *dispatch.WebPushSubscription `firestore:"web_subscription,omitempty"`
	UpdatedAt       time.Time                     `firestore:"updated_at"`
}

// --- FCM ---

func (s *FirestoreStore) RegisterFCM(ctx context.Context, userID, token string) error {
	// Hash of token as Doc ID: re-registering the same pair overwrites.
	record := deviceRecord{
		Platform:  platformFCM,
		UserID:    userID,
		Token:     token,
		UpdatedAt: time.Now().UTC(),
	}

	if _, err := s.deviceRef(userID, hashKey(token)).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to store fcm token: %w", err)
	}
	return nil
}

func (s *FirestoreStore) UnregisterFCM(ctx context.Context, userID, token string) error {
	return s.delete(ctx, userID, hashKey(token))
}

// --- Web ---

// endpointOwner maps a browser endpoint to the single user that may receive on it.
type endpointOwner struct {
	UserID    string    `firestore:"user_id"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// RegisterWeb stores sub for userID. An endpoint already owned by another user
// is moved, so a browser only ever receives one user's notifications.
func (s *FirestoreStore) RegisterWeb(ctx context.Context, userID string, sub dispatch.WebPushSubscription) error {
	_, err := s.ClaimWeb(ctx, userID, sub)
	return err
}

// ClaimWeb is RegisterWeb that also reports the user the endpoint was moved from.
func (s *FirestoreStore) ClaimWeb(ctx context.Context, userID string, sub dispatch.WebPushSubscription) (string, error) {
	// For web, the endpoint URL is the unique identifier.
	docID := hashKey(sub.Endpoint)
	now := time.Now().UTC()
	record := deviceRecord{
		Platform:        platformWeb,
		UserID:          userID,
		WebSubscription: &sub,
		UpdatedAt:       now,
	}

	var previous string
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		previous = ""
		owner, err := s.readOwner(tx, docID)
		if err != nil {
			return err
		}
		if owner != "" && owner != userID {
			previous = owner
			if err := tx.Delete(s.deviceRef(owner, docID)); err != nil {
				return err
			}
		}
		if err := tx.Set(s.deviceRef(userID, docID), record); err != nil {
			return err
		}
		return tx.Set(s.ownerRef(docID), endpointOwner{UserID: userID, UpdatedAt: now})
	})
	if err != nil {
		return "", fmt.Errorf("failed to store web subscription: %w", err)
	}
	return previous, nil
}

func (s *FirestoreStore) UnregisterWeb(ctx context.Context, userID, endpoint string) error {
	docID := hashKey(endpoint)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		owner, err := s.readOwner(tx, docID)
		if err != nil {
			return err
		}
		if err := tx.Delete(s.deviceRef(userID, docID)); err != nil {
			return err
		}
		if owner == userID {
			return tx.Delete(s.ownerRef(docID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete web subscription: %w", err)
	}
	return nil
}

func (s *FirestoreStore) readOwner(tx *firestore.Transaction, docID string) (string, error) {
	snap, err := tx.Get(s.ownerRef(docID))
	if status.Code(err) == codes.NotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var owner endpointOwner
	if err := snap.DataTo(&owner); err != nil {
		return "", err
	}
	return owner.UserID, nil
}

// --- Fan-out lookup ---

func (s *FirestoreStore) Fetch(ctx context.Context, userID string) (*dispatch.DeviceSet, error) {
	iter := s.devicesCollection(userID).Documents(ctx)
	defer iter.Stop()

	set := &dispatch.DeviceSet{
		UserID:           userID,
		FCMTokens:        make([]string, 0),
		WebSubscriptions: make([]dispatch.WebPushSubscription, 0),
	}

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			// Corrupt rows are skipped rather than failing the whole fan-out.
			continue
		}

		switch {
		case record.Platform == platformWeb && record.WebSubscription != nil:
			set.WebSubscriptions = append(set.WebSubscriptions, *record.WebSubscription)
		case record.Token != "":
			set.FCMTokens = append(set.FCMTokens, record.Token)
		}
	}

	return set, nil
}

// --- Helpers ---

func (s *FirestoreStore) delete(ctx context.Context, userID, docID string) error {
	_, err := s.deviceRef(userID, docID).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return nil
}

// deviceRef: users/{userID}/devices/{hash}
func (s *FirestoreStore) deviceRef(userID, docID string) *firestore.DocumentRef {
	return s.devicesCollection(userID).Doc(docID)
}

// ownerRef: web_endpoints/{hash}
func (s *FirestoreStore) ownerRef(docID string) *firestore.DocumentRef {
	return s.client.Collection("web_endpoints").Doc(docID)
}

func (s *FirestoreStore) devicesCollection(userID string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(userID).Collection("devices")
}

func hashKey(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
