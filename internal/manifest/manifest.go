package manifest

import (
	"github.com/starford/scimark/internal/fragment"
	"github.com/starford/scimark/internal/models"
)

// Store is what the service layer needs from the manifest. Depend on it
// rather than on *DB so tests can substitute an in-memory fake.
type Store interface {
	fragment.Ledger
	Fragments(limit, offset int, kind string) ([]models.Fragment, int, error)
	Prune(keep map[string]struct{}) (int, error)
	ReplaceLabels(labels []models.Label) error
	Label(namespace, label string) (*models.Label, error)
	Labels(namespace string) ([]models.Label, error)
	SearchLabels(query string, limit int) ([]models.Label, error)
	Close() error
}

var _ Store = (*DB)(nil)
