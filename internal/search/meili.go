package search

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"docket/internal/middleware"
)

const idxItems = "docket_items"

// Document is the indexed projection of an item.
type Document struct {
	ID        uint   `json:"id"`
	FullID    string `json:"fullId"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	ProjectID uint   `json:"projectId"`
}

// Meili indexes items in Meilisearch and answers full-text queries with item IDs.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili connects to Meilisearch and configures the item index. An unreachable server is
// tolerated: the client reports unhealthy and a background loop reconfigures it on recovery.
func NewMeili(url, apiKey string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		middleware.Logger.Warn("search: meilisearch unavailable", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop(10 * time.Second)
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxItems, PrimaryKey: "id"}); err != nil {
		middleware.Logger.Debug("search: create index (may already exist)", "index", idxItems, "error", err)
	}
	index := m.client.Index(idxItems)
	filterable := []interface{}{"projectId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		middleware.Logger.Warn("search: update filterable attributes", "error", err)
	}
	searchable := []string{"fullId", "title", "content"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		middleware.Logger.Warn("search: update searchable attributes", "error", err)
	}
}

func (m *Meili) healthLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				middleware.Logger.Info("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch answered the last health probe.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Index adds or replaces a document.
func (m *Meili) Index(doc Document) error {
	_, err := m.client.Index(idxItems).AddDocuments([]Document{doc}, nil)
	return err
}

// IndexBatch bulk-indexes documents.
func (m *Meili) IndexBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(idxItems).AddDocuments(docs, nil)
	return err
}

// Delete removes a document.
func (m *Meili) Delete(id uint) error {
	_, err := m.client.Index(idxItems).DeleteDocument(fmt.Sprintf("%d", id), nil)
	return err
}

// Search returns matching item IDs in relevance order.
func (m *Meili) Search(query string, projectID *uint, limit int) ([]uint, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	req := &meili.SearchRequest{Limit: int64(limit)}
	if projectID != nil {
		req.Filter = fmt.Sprintf("projectId = %d", *projectID)
	}
	resp, err := m.client.Index(idxItems).Search(query, req)
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	ids := make([]uint, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if id, ok := hitID(hit); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func hitID(hit meili.Hit) (uint, bool) {
	raw, ok := hit["id"]
	if !ok {
		return 0, false
	}
	var id uint
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false
	}
	return id, true
}
