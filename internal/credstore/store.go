package credstore

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/keithlinneman/authgate/internal/cryptoutil"
	"github.com/keithlinneman/authgate/internal/xerrors"
)

var (
	// ErrInvalidCredentials covers both unknown users and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotLoaded is returned until the first successful Load.
	ErrNotLoaded = errors.New("credentials not loaded")
)

// compared against for unknown users so the response time does not reveal
// whether an account exists
var dummyHash string

func init() {
	h, err := cryptoutil.HashPassword("authgate-dummy-password", cryptoutil.MinPasswordCost)
	if err != nil {
		panic(err)
	}
	dummyHash = h
}

// Store publishes the active Set. Safe for concurrent use.
type Store struct {
	current atomic.Pointer[Set]
}

func NewStore() *Store {
	return &Store{}
}

// Set swaps in s and returns the previous set, if any.
func (st *Store) Set(s *Set) *Set {
	return st.current.Swap(s)
}

// Get returns the active set.
func (st *Store) Get() (*Set, bool) {
	s := st.current.Load()
	return s, s != nil
}

// Load fetches, parses and swaps in the document from src.
// On error the active set is left untouched.
func (st *Store) Load(ctx context.Context, src Source) (*Set, error) {
	data, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse credentials from %s", src)
	}
	st.Set(s)
	return s, nil
}

// Verify checks username and password against the active set.
func (st *Store) Verify(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s, ok := st.Get()
	if !ok {
		return ErrNotLoaded
	}

	hash, found := s.lookup(username)
	if !found {
		hash = dummyHash
	}
	err := cryptoutil.ComparePassword(hash, password)
	switch {
	case err == nil && found:
		return nil
	case err == nil, errors.Is(err, cryptoutil.ErrPasswordMismatch):
		return ErrInvalidCredentials
	default:
		return xerrors.Wrap(err, "verify password")
	}
}

// Ready reports ErrNotLoaded until a set has been loaded.
func (st *Store) Ready(context.Context) error {
	if _, ok := st.Get(); !ok {
		return ErrNotLoaded
	}
	return nil
}
