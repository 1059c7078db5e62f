// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
)

const (
	bookingPrefix = "booking:"
	sessionPrefix = "session:"
	openPrefix    = "open:" // open:<booking id> -> session id

	conflictRetries = 3
)

// BadgerStore implements StateStore on an embedded Badger database.
// Keys:
//   - booking:<id>  JSON booking including history
//   - session:<id>  JSON checkout session
//   - open:<id>     id of the booking's open session, if any
//
// Badger transactions are optimistic; a commit conflict on a pinned version
// surfaces as ErrStaleVersion, otherwise the operation is retried.
type BadgerStore struct {
	db *badger.DB
}

func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

// update runs fn in a read-write transaction, retrying commit conflicts
// unless pinned is set.
func (s *BadgerStore) update(ctx context.Context, pinned bool, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if pinned {
			return ErrStaleVersion
		}
	}
	return fmt.Errorf("badger: giving up after %d conflicts: %w", conflictRetries, err)
}

func getJSON(txn *badger.Txn, key string, out any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), buf)
}

func (s *BadgerStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	return s.update(ctx, false, func(txn *badger.Txn) error {
		key := bookingPrefix + b.ID
		if _, err := txn.Get([]byte(key)); err == nil {
			return fmt.Errorf("booking %s already exists", b.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, key, b)
	})
}

func (s *BadgerStore) GetBooking(_ context.Context, id string) (*model.Booking, error) {
	var out model.Booking
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, bookingPrefix+id, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) ListBookings(ctx context.Context, f BookingFilter) ([]*model.Booking, error) {
	var out []*model.Booking
	prefix := []byte(bookingPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var b model.Booking
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &b)
			}); err != nil {
				return err
			}
			if f.CustomerID != "" && b.CustomerID != f.CustomerID {
				continue
			}
			if f.ProviderID != "" && b.ProviderID != f.ProviderID {
				continue
			}
			if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, b.Status) {
				continue
			}
			b.History = nil
			out = append(out, &b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *model.Booking) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return compareStrings(a.ID, b.ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *BadgerStore) UpdateBooking(ctx context.Context, id string, expectedVersion int64, fn BookingMutator) (*model.Booking, error) {
	var out *model.Booking
	err := s.update(ctx, expectedVersion > 0, func(txn *badger.Txn) error {
		var cur model.Booking
		if err := getJSON(txn, bookingPrefix+id, &cur); err != nil {
			return err
		}
		if expectedVersion > 0 && cur.Version != expectedVersion {
			return ErrStaleVersion
		}
		next, err := fn(cur.Clone())
		if err != nil {
			return err
		}
		if err := checkNext(&cur, next); err != nil {
			return err
		}
		out = next
		return setJSON(txn, bookingPrefix+id, next)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) GetSession(_ context.Context, id string) (*model.CheckoutSession, error) {
	var out model.CheckoutSession
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, sessionPrefix+id, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) OpenSession(_ context.Context, bookingID string) (*model.CheckoutSession, error) {
	var out model.CheckoutSession
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(openPrefix + bookingID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		sid, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, sessionPrefix+string(sid), &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) ListOpenSessions(ctx context.Context, cutoff time.Time) ([]*model.CheckoutSession, error) {
	var out []*model.CheckoutSession
	prefix := []byte(openPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			sid, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var cs model.CheckoutSession
			if err := getJSON(txn, sessionPrefix+string(sid), &cs); err != nil {
				return err
			}
			if !cs.ExpiresAt.After(cutoff) {
				out = append(out, &cs)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *model.CheckoutSession) int { return a.ExpiresAt.Compare(b.ExpiresAt) })
	return out, nil
}

func (s *BadgerStore) CreateSession(ctx context.Context, cs *model.CheckoutSession, fn BookingMutator) (*model.Booking, error) {
	var out *model.Booking
	err := s.update(ctx, false, func(txn *badger.Txn) error {
		var cur model.Booking
		if err := getJSON(txn, bookingPrefix+cs.BookingID, &cur); err != nil {
			return err
		}
		if _, err := txn.Get([]byte(openPrefix + cs.BookingID)); err == nil {
			return ErrSessionConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		next, err := fn(cur.Clone())
		if err != nil {
			return err
		}
		if err := checkNext(&cur, next); err != nil {
			return err
		}
		if err := setJSON(txn, sessionPrefix+cs.ID, cs); err != nil {
			return err
		}
		if cs.Status == model.SessionOpen {
			if err := txn.Set([]byte(openPrefix+cs.BookingID), []byte(cs.ID)); err != nil {
				return err
			}
		}
		out = next
		return setJSON(txn, bookingPrefix+cur.ID, next)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) UpdateSession(ctx context.Context, id string, fn SessionMutator) (*model.Booking, *model.CheckoutSession, error) {
	var (
		outB *model.Booking
		outS *model.CheckoutSession
	)
	err := s.update(ctx, false, func(txn *badger.Txn) error {
		var cs model.CheckoutSession
		if err := getJSON(txn, sessionPrefix+id, &cs); err != nil {
			return err
		}
		var cur model.Booking
		if err := getJSON(txn, bookingPrefix+cs.BookingID, &cur); err != nil {
			return err
		}
		scopy := cs
		nextB, nextS, err := fn(cur.Clone(), &scopy)
		if err != nil {
			return err
		}
		outB, outS = &cur, &cs
		if nextS != nil {
			if nextS.ID != cs.ID || nextS.BookingID != cs.BookingID {
				return fmt.Errorf("%w: session identity changed", ErrInvariant)
			}
			if err := setJSON(txn, sessionPrefix+id, nextS); err != nil {
				return err
			}
			openKey := []byte(openPrefix + cs.BookingID)
			if nextS.Status != model.SessionOpen && cs.Status == model.SessionOpen {
				if err := txn.Delete(openKey); err != nil {
					return err
				}
			}
			outS = nextS
		}
		if nextB != nil {
			if err := checkNext(&cur, nextB); err != nil {
				return err
			}
			if err := setJSON(txn, bookingPrefix+cur.ID, nextB); err != nil {
				return err
			}
			outB = nextB
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	cp := *outS
	return outB, &cp, nil
}

var _ StateStore = (*BadgerStore)(nil)
