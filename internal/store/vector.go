package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// encodeVector serializes a vector as little-endian float32, padded with
// zeros to VectorDimensions.
func encodeVector(vec []float32) ([]byte, error) {
	if len(vec) > VectorDimensions {
		return nil, fmt.Errorf("vector has %d dimensions, maximum is %d", len(vec), VectorDimensions)
	}
	buf := make([]byte, VectorDimensions*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf, nil
}

// decodeVector deserializes a stored embedding blob.
func decodeVector(buf []byte) ([]float32, error) {
	if len(buf) != VectorDimensions*4 {
		return nil, fmt.Errorf("embedding blob is %d bytes, expected %d", len(buf), VectorDimensions*4)
	}
	vec := make([]float32, VectorDimensions)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

// padVector zero-extends vec to VectorDimensions without mutating it.
func padVector(vec []float32) []float32 {
	if len(vec) == VectorDimensions {
		return vec
	}
	padded := make([]float32, VectorDimensions)
	copy(padded, vec)
	return padded
}

// graphCache keeps one HNSW graph per (library, version) partition,
// built lazily from persisted embeddings. Any write to a partition
// drops its graph; the next search rebuilds it.
type graphCache struct {
	mu     sync.Mutex
	graphs map[string]*hnsw.Graph[int64]
}

func newGraphCache() *graphCache {
	return &graphCache{graphs: make(map[string]*hnsw.Graph[int64])}
}

func partitionKey(libraryID int64, version string) string {
	return fmt.Sprintf("%d\x00%s", libraryID, version)
}

func (c *graphCache) invalidate(libraryID int64, version string) {
	c.mu.Lock()
	delete(c.graphs, partitionKey(libraryID, version))
	c.mu.Unlock()
}

// vectorHit is one vector-branch candidate.
type vectorHit struct {
	id       int64
	distance float32
}

// searchVectors returns up to k nearest stored chunks by L2 distance
// within the partition, ordered by ascending distance.
func (s *Store) searchVectors(ctx context.Context, libraryID int64, version string, query []float32, k int) ([]vectorHit, error) {
	graph, err := s.partitionGraph(ctx, libraryID, version)
	if err != nil {
		return nil, err
	}
	if graph.Len() == 0 {
		return nil, nil
	}

	query = padVector(query)
	nodes := graph.Search(query, k)

	hits := make([]vectorHit, 0, len(nodes))
	for _, node := range nodes {
		hits = append(hits, vectorHit{
			id:       node.Key,
			distance: graph.Distance(query, node.Value),
		})
	}
	// Search already orders by distance; positions become ranks.
	return hits, nil
}

// partitionGraph returns the cached graph for the partition, building it
// from the documents_vec table on first use.
func (s *Store) partitionGraph(ctx context.Context, libraryID int64, version string) (*hnsw.Graph[int64], error) {
	key := partitionKey(libraryID, version)

	s.graphs.mu.Lock()
	defer s.graphs.mu.Unlock()

	if g, ok := s.graphs.graphs[key]; ok {
		return g, nil
	}

	graph := hnsw.NewGraph[int64]()
	graph.Distance = hnsw.EuclideanDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.embedding
		FROM documents_vec v
		JOIN documents d ON d.id = v.id
		WHERE d.library_id = ? AND d.version = ?`, libraryID, version)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", id, err)
		}
		graph.Add(hnsw.MakeNode(id, vec))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.graphs.graphs[key] = graph
	return graph, nil
}
