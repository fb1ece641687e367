package credstore

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/authgate/internal/cryptoutil"
	"github.com/keithlinneman/authgate/internal/xerrors"
)

// maxDocumentBytes bounds what Parse accepts from any source.
const maxDocumentBytes = 1 << 20

type document struct {
	Users []userEntry `yaml:"users"`
}

type userEntry struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// Set is an immutable, validated set of accounts.
type Set struct {
	users  map[string]string // normalized username -> bcrypt hash
	digest string
}

// Len returns the number of accounts.
func (s *Set) Len() int { return len(s.users) }

// Digest is the SHA-256 of the document the set was parsed from.
func (s *Set) Digest() string { return s.digest }

func (s *Set) lookup(username string) (string, bool) {
	h, ok := s.users[NormalizeUsername(username)]
	return h, ok
}

// NormalizeUsername folds a username to the form used for lookups.
func NormalizeUsername(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

// Parse decodes and validates a credentials document. Unknown fields,
// empty or duplicate usernames and anything other than a bcrypt hash of at
// least cryptoutil.MinPasswordCost are rejected.
func Parse(data []byte) (*Set, error) {
	if len(data) > maxDocumentBytes {
		return nil, xerrors.Newf("credentials document too large: %d bytes (max %d)", len(data), maxDocumentBytes)
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, xerrors.Wrap(err, "decode credentials document")
	}
	if len(doc.Users) == 0 {
		return nil, xerrors.New("credentials document has no users")
	}

	users := make(map[string]string, len(doc.Users))
	for i, u := range doc.Users {
		name := NormalizeUsername(u.Username)
		if name == "" {
			return nil, xerrors.Newf("users[%d]: empty username", i)
		}
		if _, dup := users[name]; dup {
			return nil, xerrors.Newf("users[%d]: duplicate username %q", i, name)
		}
		cost, err := cryptoutil.PasswordCost(u.PasswordHash)
		if err != nil {
			return nil, xerrors.Wrapf(err, "users[%d] %q", i, name)
		}
		if cost < cryptoutil.MinPasswordCost {
			return nil, xerrors.Newf("users[%d] %q: bcrypt cost %d below minimum %d", i, name, cost, cryptoutil.MinPasswordCost)
		}
		users[name] = u.PasswordHash
	}

	return &Set{users: users, digest: cryptoutil.Digest(data)}, nil
}
