package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/rawblock/geoshield-engine/pkg/models"
)

// CollectionName is the single collection the engine owns. Points are
// keyed by the fingerprint id with the full fingerprint as payload.
const CollectionName = "geo_spoofer_sessions"

// Neighbor is one nearest-neighbour hit from the index. Score is cosine
// similarity in [0, 1], 1 meaning identical.
type Neighbor struct {
	ID          string
	Score       float32
	Fingerprint models.SessionFingerprint
}

// StoreConfig wires a Store.
type StoreConfig struct {
	Logger *slog.Logger

	Host   string
	Port   int
	APIKey string
	UseTLS bool

	Collection string
	Dimension  int
}

func (c *StoreConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = CollectionName
	}
	if c.Dimension <= 0 {
		return errors.New("embedding dimension is required")
	}
	return nil
}

// Store is the Qdrant-backed session index. The underlying client holds
// a long-lived gRPC connection pool and is safe for concurrent use.
type Store struct {
	log        *slog.Logger
	client     *qdrant.Client
	collection string
	dimension  uint64

	ensureOnce sync.Once
	ensureErr  error
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}

	return &Store{
		log:        cfg.Logger,
		client:     client,
		collection: cfg.Collection,
		dimension:  uint64(cfg.Dimension),
	}, nil
}

// EnsureCollection idempotently creates the collection with cosine
// distance. Concurrent callers collapse to a single creation attempt;
// transient startup failures are retried with exponential backoff.
func (s *Store) EnsureCollection(ctx context.Context) error {
	s.ensureOnce.Do(func() {
		op := func() error {
			exists, err := s.client.CollectionExists(ctx, s.collection)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: s.collection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     s.dimension,
					Distance: qdrant.Distance_Cosine,
				}),
			})
		}

		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
		s.ensureErr = backoff.Retry(op, policy)
		if s.ensureErr == nil {
			s.log.Info("vector collection ready", "collection", s.collection, "dimension", s.dimension)
		}
	})
	return s.ensureErr
}

// Upsert writes one point. Writing the same id twice replaces the point,
// never duplicates it.
func (s *Store) Upsert(ctx context.Context, id string, vec []float32, fp *models.SessionFingerprint) error {
	payload, err := fingerprintPayload(fp)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	wait := true
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectors(vec...),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert point %s: %w", id, err)
	}
	return nil
}

// Search returns up to limit nearest neighbours by cosine similarity.
// Empty result when the collection holds no points.
func (s *Store) Search(ctx context.Context, vec []float32, limit int) ([]Neighbor, error) {
	lim := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	neighbours := make([]Neighbor, 0, len(points))
	for _, p := range points {
		n := Neighbor{Score: p.Score}
		if id := p.Id.GetUuid(); id != "" {
			n.ID = id
		}
		fp, err := payloadToFingerprint(p.Payload)
		if err != nil {
			s.log.Warn("skipping neighbour with undecodable payload", "id", n.ID, "error", err)
			continue
		}
		n.Fingerprint = *fp
		neighbours = append(neighbours, n)
	}
	return neighbours, nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Healthy reports whether the backend answers within the deadline.
func (s *Store) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := s.client.HealthCheck(ctx)
	return err == nil
}

// fingerprintPayload converts a fingerprint into a qdrant payload map by
// round-tripping through JSON. This keeps the stored shape identical to
// the wire shape.
func fingerprintPayload(fp *models.SessionFingerprint) (map[string]*qdrant.Value, error) {
	raw, err := json.Marshal(fp)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return qdrant.TryValueMap(generic)
}

// payloadToFingerprint reverses fingerprintPayload.
func payloadToFingerprint(payload map[string]*qdrant.Value) (*models.SessionFingerprint, error) {
	generic := make(map[string]any, len(payload))
	for k, v := range payload {
		generic[k] = valueToAny(v)
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, err
	}
	var fp models.SessionFingerprint
	if err := json.Unmarshal(raw, &fp); err != nil {
		return nil, err
	}
	return &fp, nil
}

func valueToAny(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.Kind.(type) {
	case *qdrant.Value_NullValue:
		return nil
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_ListValue:
		items := make([]any, 0, len(kind.ListValue.Values))
		for _, item := range kind.ListValue.Values {
			items = append(items, valueToAny(item))
		}
		return items
	case *qdrant.Value_StructValue:
		fields := make(map[string]any, len(kind.StructValue.Fields))
		for k, field := range kind.StructValue.Fields {
			fields[k] = valueToAny(field)
		}
		return fields
	default:
		return nil
	}
}
