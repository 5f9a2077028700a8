// Package store persists the signed-in session (token and user identity) in
// a local bbolt file so the CLI survives restarts.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketSession = []byte("session")

	keyToken = []byte("token")
	keyUser  = []byte("user")
)

// ErrNotFound is returned when no record is stored.
var ErrNotFound = errors.New("not found")

// BoltStore keeps credentials in a bbolt database. It satisfies
// yapper.TokenSource and yapper.Identity.
type BoltStore struct {
	db *bbolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveToken stores the auth token.
func (s *BoltStore) SaveToken(token string) error {
	return s.put(keyToken, &DBToken{Token: token, SavedAt: time.Now().Unix()})
}

// Token returns the stored token, or an empty string when signed out.
func (s *BoltStore) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var t DBToken
	err := s.get(keyToken, &t)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return t.Token, nil
}

// DeleteToken removes the token.
func (s *BoltStore) DeleteToken() error {
	return s.del(keyToken)
}

// SaveUser stores the signed-in user.
func (s *BoltStore) SaveUser(u DBUser) error {
	return s.put(keyUser, &u)
}

// User returns the signed-in user or ErrNotFound.
func (s *BoltStore) User() (DBUser, error) {
	var u DBUser
	if err := s.get(keyUser, &u); err != nil {
		return DBUser{}, err
	}
	return u, nil
}

// CurrentUserID returns the signed-in user's id, or an empty string.
func (s *BoltStore) CurrentUserID() string {
	u, err := s.User()
	if err != nil {
		return ""
	}
	return u.ID
}

// Logout removes the token and the user in one transaction.
func (s *BoltStore) Logout() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if err := b.Delete(keyToken); err != nil {
			return err
		}
		return b.Delete(keyUser)
	})
}

func (s *BoltStore) put(key []byte, v storeable) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Put(key, data)
	})
}

func (s *BoltStore) get(key []byte, v storeable) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSession).Get(key)
		if data == nil {
			return ErrNotFound
		}
		return v.UnmarshalBinary(data)
	})
}

func (s *BoltStore) del(key []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Delete(key)
	})
}
