// Package session persists per-conversation history in a bbolt database so
// follow-up questions survive server restarts.
package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

var bucketSessions = []byte("sessions")

// Exchange is one completed question and answer.
type Exchange struct {
	Query  string    `json:"query"`
	Answer string    `json:"answer"`
	At     time.Time `json:"at"`
}

type record struct {
	Exchanges []Exchange `json:"exchanges"`
	CreatedAt time.Time  `json:"created_at"`
}

// Store keeps conversation histories, each capped at maxHistory exchanges
// with oldest-first eviction.
type Store struct {
	db         *bbolt.DB
	maxHistory int
}

func Open(path string, maxHistory int) (*Store, error) {
	if maxHistory <= 0 {
		maxHistory = 10
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init session db: %w", err)
	}
	return &Store{db: db, maxHistory: maxHistory}, nil
}

// Create mints a new session and returns its id.
func (s *Store) Create() (string, error) {
	id := newULID()
	rec := record{CreatedAt: time.Now()}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSessions).Put([]byte(id), data)
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// Exists reports whether the id names a known session.
func (s *Store) Exists(id string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketSessions).Get([]byte(id)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("session lookup: %w", err)
	}
	return found, nil
}

// AddExchange appends a completed exchange, evicting the oldest once the
// session is at capacity. Unknown ids are created implicitly.
func (s *Store) AddExchange(id, query, answer string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		var rec record
		if data := b.Get([]byte(id)); data != nil {
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("decode session %s: %w", id, err)
			}
		} else {
			rec.CreatedAt = time.Now()
		}

		rec.Exchanges = append(rec.Exchanges, Exchange{Query: query, Answer: answer, At: time.Now()})
		if excess := len(rec.Exchanges) - s.maxHistory; excess > 0 {
			rec.Exchanges = rec.Exchanges[excess:]
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return fmt.Errorf("record exchange: %w", err)
	}
	return nil
}

// History renders the session's exchanges oldest first as alternating
// "User:" and "Assistant:" lines, or empty when the session has none.
func (s *Store) History(id string) (string, error) {
	var rec record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(id))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return "", fmt.Errorf("load session %s: %w", id, err)
	}
	if len(rec.Exchanges) == 0 {
		return "", nil
	}

	var b strings.Builder
	for i, ex := range rec.Exchanges {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", ex.Query, ex.Answer)
	}
	return b.String(), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
