package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/google/uuid"

	"github.com/Skotchmaster/lms/services/course/internal/models"
)

const indexMapping = `{
  "mappings": {
    "properties": {
      "title":        {"type": "text"},
      "description":  {"type": "text"},
      "category":     {"type": "keyword"},
      "is_published": {"type": "boolean"}
    }
  }
}`

type Elastic struct {
	Client    *elasticsearch.Client
	IndexName string
}

type ElasticConfig struct {
	URL      string
	Username string
	Password string
	Index    string
}

// NewElastic connects and verifies the cluster answers before returning.
func NewElastic(ctx context.Context, cfg ElasticConfig) (*Elastic, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError("info", res)
	}
	return &Elastic{Client: client, IndexName: cfg.Index}, nil
}

// EnsureIndex creates the course index with its mapping when it is missing.
func (e *Elastic) EnsureIndex(ctx context.Context) error {
	res, err := e.Client.Indices.Exists([]string{e.IndexName}, e.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = e.Client.Indices.Create(e.IndexName,
		e.Client.Indices.Create.WithContext(ctx),
		e.Client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("create index", res)
	}
	return nil
}

func (e *Elastic) Index(ctx context.Context, c models.Course) error {
	if !c.IsPublished {
		return e.Remove(ctx, c.ID)
	}

	body, err := json.Marshal(c)
	if err != nil {
		return err
	}
	res, err := e.Client.Index(e.IndexName, bytes.NewReader(body),
		e.Client.Index.WithContext(ctx),
		e.Client.Index.WithDocumentID(c.ID.String()),
	)
	if err != nil {
		return fmt.Errorf("index course: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index course", res)
	}
	return nil
}

// Remove deletes the document; a missing document is not an error.
func (e *Elastic) Remove(ctx context.Context, id uuid.UUID) error {
	res, err := e.Client.Delete(e.IndexName, id.String(), e.Client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("remove course: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("remove course", res)
	}
	return nil
}

func (e *Elastic) Search(ctx context.Context, q string, offset, limit int) (Result, error) {
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":     q,
						"fields":    []string{"title^2", "description"},
						"fuzziness": "AUTO",
					},
				},
				"filter": map[string]any{
					"term": map[string]any{"is_published": true},
				},
			},
		},
		"from": offset,
		"size": limit,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return Result{}, err
	}

	res, err := e.Client.Search(
		e.Client.Search.WithContext(ctx),
		e.Client.Search.WithIndex(e.IndexName),
		e.Client.Search.WithBody(&buf),
		e.Client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return Result{}, fmt.Errorf("search courses: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return Result{}, responseError("search courses", res)
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.Course `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return Result{}, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.Course, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		items[i] = hit.Source
	}
	return Result{Total: r.Hits.Total.Value, Items: items}, nil
}

func responseError(op string, res *esapi.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	return fmt.Errorf("%s: elasticsearch %s: %s", op, res.Status(), bytes.TrimSpace(msg))
}
