package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	serrors "github.com/guoyu-zhang/say-like-a-native/internal/errors"
)

// Backend names.
const (
	BackendBleve      = "bleve"
	BackendSQLite     = "sqlite"
	BackendOpenSearch = "opensearch"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	// DataDir holds embedded backend files. Empty keeps them in memory.
	DataDir    string
	Index      string
	OpenSearch OpenSearchConfig
}

// Path returns the file or directory an embedded backend uses under DataDir,
// or "" for in-memory and remote backends.
func (c Config) Path() string {
	if c.DataDir == "" {
		return ""
	}
	base := filepath.Join(c.DataDir, "segments")
	switch strings.ToLower(c.Backend) {
	case BackendSQLite:
		return base + ".db"
	case BackendBleve, "":
		return base + ".bleve"
	default:
		return ""
	}
}

// Open creates the configured backend. For OpenSearch it waits for the
// cluster and makes sure the index exists.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendBleve, "":
		return NewBleveStore(cfg.Path(), cfg.Index)

	case BackendSQLite:
		return NewSQLiteStore(cfg.Path(), cfg.Index)

	case BackendOpenSearch:
		osCfg := cfg.OpenSearch
		if osCfg.Index == "" {
			osCfg.Index = cfg.Index
		}
		s, err := NewOpenSearchStore(osCfg)
		if err != nil {
			return nil, serrors.New(serrors.ErrCodeConfigInvalid, err.Error(), err)
		}
		if err := s.Ping(ctx); err != nil {
			return nil, serrors.New(serrors.ErrCodeStoreUnavailable, "opensearch is unreachable", err).
				WithDetail("url", osCfg.URL)
		}
		if err := s.EnsureIndex(ctx); err != nil {
			return nil, serrors.Wrap(serrors.ErrCodeStoreUnavailable, err)
		}
		return s, nil

	default:
		return nil, serrors.New(serrors.ErrCodeUnknownBackend,
			fmt.Sprintf("unknown store backend %q", cfg.Backend), nil).
			WithSuggestion("use bleve, sqlite or opensearch")
	}
}
