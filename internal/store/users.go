// Package store persists user accounts in BadgerDB and implements the
// credential checks behind signup and signin. The relay core never touches
// this package directly; it only sees identities through the session
// validator's lookup interface.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chatrelay/internal/types"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("incorrect email or password")
)

// User is a stored account record.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserStore is a BadgerDB-backed account repository. Records are stored
// twice: user:<email> holds the JSON record, userid:<id> holds the email for
// id lookups.
type UserStore struct {
	db *badger.DB
}

func NewUserStore(db *badger.DB) *UserStore {
	return &UserStore{db: db}
}

// Open opens (or creates) the store at path. An empty path opens an
// in-memory database, which tests rely on.
func Open(path string) (*UserStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &UserStore{db: db}, nil
}

func (s *UserStore) Close() error {
	return s.db.Close()
}

func emailKey(email string) []byte {
	return []byte("user:" + strings.ToLower(strings.TrimSpace(email)))
}

func idKey(id string) []byte {
	return []byte("userid:" + id)
}

// Create hashes the password and persists a new user, rejecting duplicate
// emails. It returns the stored record.
func (s *UserStore) Create(email, fullName, password string) (User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(user)
	if err != nil {
		return User{}, fmt.Errorf("marshal user: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := emailKey(user.Email)
		if _, err := txn.Get(key); err == nil {
			return ErrUserAlreadyExists
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(idKey(user.ID), []byte(user.Email))
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *UserStore) GetByEmail(email string) (User, error) {
	var user User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *UserStore) GetByID(id string) (User, error) {
	var email string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			email = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return s.GetByEmail(email)
}

// Authenticate verifies an email/password pair. A missing user and a wrong
// password collapse into the same error so responses don't leak which
// accounts exist.
func (s *UserStore) Authenticate(email, password string) (User, error) {
	user, err := s.GetByEmail(email)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	match, err := ComparePassword(password, user.PasswordHash)
	if err != nil {
		return User{}, err
	}
	if !match {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// LookupIdentity implements session.UserLookup: the handshake's claim
// re-verification path.
func (s *UserStore) LookupIdentity(ctx context.Context, userID string) (types.Identity, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Identity{}, false, err
	}
	user, err := s.GetByID(userID)
	if errors.Is(err, ErrUserNotFound) {
		return types.Identity{}, false, nil
	}
	if err != nil {
		return types.Identity{}, false, err
	}
	return types.Identity{UserID: user.ID, DisplayName: user.FullName}, true, nil
}
