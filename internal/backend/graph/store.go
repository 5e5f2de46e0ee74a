// Package graph implements the backend adapter over a badger-backed
// knowledge graph. Raw scores are activation weights from term-anchored
// spreading activation, roughly in [0, number of query terms].
package graph

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/kailas-cloud/retrio/internal/domain"
)

// Key prefixes. Nodes are JSON blobs, edges are float64 weights, and term
// postings are empty values whose key carries both term and node id.
const (
	nodePrefix = "n:"
	edgePrefix = "e:"
	termPrefix = "t:"
)

// Node is one piece of content in the knowledge graph.
type Node struct {
	ID        string             `json:"id"`
	Type      domain.ContentType `json:"type"`
	Title     string             `json:"title"`
	Excerpt   string             `json:"excerpt"`
	Source    string             `json:"source,omitempty"`
	Category  string             `json:"category,omitempty"`
	Tags      []string           `json:"tags,omitempty"`
	Published time.Time          `json:"published,omitempty"`
}

// Store persists graph nodes, weighted edges, and term postings in badger.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a persistent graph store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory creates a non-persistent store (tests, local runs).
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory graph store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the store.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close graph store: %w", err)
	}
	return nil
}

// PutNode adds or replaces one node and its term postings. Postings are
// derived from the title, tags, and category.
func (s *Store) PutNode(n Node) error {
	if n.ID == "" {
		return fmt.Errorf("node id is required")
	}
	// Keys embed the id after a ":" separator, so ids must not contain one.
	if strings.Contains(n.ID, ":") {
		return fmt.Errorf("node id %q must not contain ':'", n.ID)
	}
	blob, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal node %s: %w", n.ID, err)
	}

	terms := Tokenize(n.Title)
	for _, tag := range n.Tags {
		terms = append(terms, Tokenize(tag)...)
	}
	terms = append(terms, Tokenize(n.Category)...)

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(nodePrefix+n.ID), blob); err != nil {
			return err
		}
		for _, term := range terms {
			if err := txn.Set([]byte(termPrefix+term+":"+n.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put node %s: %w", n.ID, err)
	}
	return nil
}

// Link creates a directed weighted edge between two nodes. Weight must be
// in (0, 1]; it scales the activation passed from src to dst.
func (s *Store) Link(src, dst string, weight float64) error {
	if src == "" || dst == "" {
		return fmt.Errorf("edge endpoints are required")
	}
	if strings.Contains(src, ":") || strings.Contains(dst, ":") {
		return fmt.Errorf("edge endpoints %q -> %q must not contain ':'", src, dst)
	}
	if weight <= 0 || weight > 1 {
		return fmt.Errorf("edge weight must be in (0, 1], got %v", weight)
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(weight))

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(edgePrefix+src+":"+dst), buf[:])
	})
	if err != nil {
		return fmt.Errorf("link %s -> %s: %w", src, dst, err)
	}
	return nil
}

// node loads one node by id inside a read transaction.
func (s *Store) node(txn *badger.Txn, id string) (Node, error) {
	item, err := txn.Get([]byte(nodePrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Node{}, domain.ErrNotFound
	}
	if err != nil {
		return Node{}, err
	}

	var n Node
	err = item.Value(func(val []byte) error {
		if jsonErr := json.Unmarshal(val, &n); jsonErr != nil {
			return fmt.Errorf("node %s: %w: %w", id, domain.ErrBackendProtocol, jsonErr)
		}
		return nil
	})
	if err != nil {
		return Node{}, err
	}
	return n, nil
}

// nodesForTerm collects the ids posted under one term.
func (s *Store) nodesForTerm(txn *badger.Txn, term string) []string {
	prefix := []byte(termPrefix + term + ":")

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().Key()
		ids = append(ids, string(key[len(prefix):]))
	}
	return ids
}

// neighbors collects outgoing edges of one node.
func (s *Store) neighbors(txn *badger.Txn, id string) (map[string]float64, error) {
	prefix := []byte(edgePrefix + id + ":")

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	out := make(map[string]float64)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		dst := string(item.Key()[len(prefix):])

		err := item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("edge %s -> %s: %w", id, dst, domain.ErrBackendProtocol)
			}
			out[dst] = math.Float64frombits(binary.BigEndian.Uint64(val))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Tokenize splits text into lowercase alphanumeric terms. Terms shorter
// than two runes carry no signal and are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			out = append(out, f)
		}
	}
	return out
}
