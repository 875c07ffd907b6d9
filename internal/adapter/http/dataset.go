package http

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/couchcryptid/street-parking-odds/internal/store"
)

var errNotLoaded = errors.New("dataset not loaded")

// DatasetState tracks the store once it has been loaded. The zero value is
// ready to use and reports not ready.
type DatasetState struct {
	st atomic.Pointer[store.Store]
}

// DatasetStats is the /stats response body.
type DatasetStats struct {
	Source  string          `json:"source"`
	Rows    int             `json:"rows"`
	Regions []string        `json:"regions"`
	Load    store.LoadStats `json:"load"`
}

// Set publishes a loaded store.
func (d *DatasetState) Set(st *store.Store) {
	d.st.Store(st)
}

// CheckReadiness implements the shared readiness checker.
func (d *DatasetState) CheckReadiness(_ context.Context) error {
	if d.st.Load() == nil {
		return errNotLoaded
	}
	return nil
}

// Stats summarizes the loaded store. ok is false before Set.
func (d *DatasetState) Stats() (DatasetStats, bool) {
	st := d.st.Load()
	if st == nil {
		return DatasetStats{}, false
	}
	return DatasetStats{
		Source:  st.Source(),
		Rows:    st.Len(),
		Regions: st.Regions(),
		Load:    st.Stats(),
	}, true
}
