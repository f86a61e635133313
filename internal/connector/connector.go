package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/uniboxhq/inbox-sync/internal/model"
)

// Credentials is the decrypted secret material a connector needs for
// one call. How it was obtained (OAuth refresh etc.) is not this
// layer's concern.
type Credentials struct {
	Token string `json:"token"`
}

// RawItem is one external entity as the provider reported it, before
// any business-rule interpretation. An empty ExternalID marks an
// element whose envelope could not be decoded; the coordinator skips
// it as malformed without aborting the batch.
type RawItem struct {
	ExternalID string
	Payload    json.RawMessage
	UpdatedAt  time.Time
}

// Connector knows how to pull items for a user from one provider, or
// decode a payload the provider pushed. Implementations are stateless
// beyond per-call credentials and perform no writes.
type Connector interface {
	Kind() model.SourceKind
	// FetchItems returns a finite batch of raw items. A failed fetch
	// is retried from the start; there is no mid-batch resume.
	FetchItems(ctx context.Context, userID uuid.UUID, creds Credentials) ([]RawItem, error)
	DecodeWebhook(payload []byte) (*RawItem, error)
}

// Registry resolves the connector for a source kind.
type Registry struct {
	connectors map[model.SourceKind]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	m := make(map[model.SourceKind]Connector, len(connectors))
	for _, c := range connectors {
		m[c.Kind()] = c
	}
	return &Registry{connectors: m}
}

func (r *Registry) Get(kind model.SourceKind) (Connector, error) {
	c, ok := r.connectors[kind]
	if !ok {
		return nil, fmt.Errorf("no connector registered for source %q", kind)
	}
	return c, nil
}
