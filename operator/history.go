package operator

import (
	"sync"

	"github.com/hypergrid-io/hypergrid/internal/kvstore"
	"github.com/hypergrid-io/hypergrid/internal/model"
)

// historyLimit is N from spec §3/§4.8 step 8.
const historyLimit = 500

// History is the bounded in-memory ring of recent CallRecords, persisted to
// the KV store under kvstore.KeyCallHistory so it survives a restart.
type History struct {
	mu      sync.Mutex
	kv      *kvstore.Store
	records []model.CallRecord // newest last
}

func NewHistory(kv *kvstore.Store) (*History, error) {
	h := &History{kv: kv}
	var records []model.CallRecord
	if ok, err := kv.GetJSON(kvstore.KeyCallHistory, &records); err != nil {
		return nil, err
	} else if ok {
		h.records = records
	}
	return h, nil
}

// Append adds rec, trimming to historyLimit (spec §4.8 step 8: "trim to
// N=500").
func (h *History) Append(rec model.CallRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	if len(h.records) > historyLimit {
		h.records = h.records[len(h.records)-historyLimit:]
	}
	return h.kv.SetJSON(kvstore.KeyCallHistory, h.records)
}

// Recent returns the most recent records, newest last, up to limit (0 means
// all held).
func (h *History) Recent(limit int) []model.CallRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit >= len(h.records) {
		out := make([]model.CallRecord, len(h.records))
		copy(out, h.records)
		return out
	}
	out := make([]model.CallRecord, limit)
	copy(out, h.records[len(h.records)-limit:])
	return out
}
