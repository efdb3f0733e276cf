package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
)

// LookupStore keeps lookup history in-memory, bounded per cert.
type LookupStore struct {
	mu      sync.RWMutex
	perCert int
	records map[string][]estimate.LookupRecord
}

// NewLookupStore constructs a LookupStore retaining up to perCert rows per cert.
func NewLookupStore(perCert int) *LookupStore {
	if perCert <= 0 {
		perCert = 100
	}
	return &LookupStore{
		perCert: perCert,
		records: make(map[string][]estimate.LookupRecord),
	}
}

// Record appends a history row, evicting the oldest when the cert is full.
func (s *LookupStore) Record(_ context.Context, record estimate.LookupRecord) error {
	if record.PSACert == "" {
		return errors.New("psa cert is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := append(s.records[record.PSACert], record)
	if len(rows) > s.perCert {
		rows = append([]estimate.LookupRecord(nil), rows[len(rows)-s.perCert:]...)
	}
	s.records[record.PSACert] = rows
	return nil
}

// Recent returns up to limit rows for cert, newest first.
func (s *LookupStore) Recent(_ context.Context, cert string, limit int) ([]estimate.LookupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.records[cert]
	out := make([]estimate.LookupRecord, 0, min(limit, len(rows)))
	for i := len(rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, rows[i])
	}
	return out, nil
}
