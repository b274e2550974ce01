package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"tempchat/internal/app/user"
)

const usrPrefix = "usr:"

// Directory implements user.Directory in the same database as the message store.
type Directory struct {
	store *Store
}

// NewDirectory returns a directory backed by s.
func NewDirectory(s *Store) *Directory {
	return &Directory{store: s}
}

func usrKey(id string) []byte {
	return []byte(usrPrefix + id)
}

func getUser(txn *badger.Txn, id string) (user.User, error) {
	item, err := txn.Get(usrKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, err
	}

	var u user.User
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &u)
	})
	return u, err
}

func putUser(txn *badger.Txn, u user.User) error {
	value, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return txn.Set(usrKey(u.ID), value)
}

func (d *Directory) Ensure(_ context.Context, id string) (user.User, error) {
	var u user.User
	err := d.store.update(func(txn *badger.Txn) error {
		existing, err := getUser(txn, id)
		if err == nil {
			u = existing
			return nil
		}
		if !errors.Is(err, user.ErrNotFound) {
			return err
		}

		u = user.NewDefault(id, time.Now())
		return putUser(txn, u)
	})
	if err != nil {
		return user.User{}, fmt.Errorf("ensure user %s: %w", id, err)
	}
	return u, nil
}

func (d *Directory) Get(_ context.Context, id string) (user.User, error) {
	var u user.User
	err := d.store.db.View(func(txn *badger.Txn) error {
		var err error
		u, err = getUser(txn, id)
		return err
	})
	return u, err
}

func (d *Directory) UpdateProfile(_ context.Context, id string, name, color *string) (user.User, error) {
	var u user.User
	err := d.store.update(func(txn *badger.Txn) error {
		existing, err := getUser(txn, id)
		if err != nil {
			return err
		}

		u = existing.Apply(name, color, time.Now())
		return putUser(txn, u)
	})
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, err
		}
		return user.User{}, fmt.Errorf("update user %s: %w", id, err)
	}
	return u, nil
}
