package hazptr

import "encoding/json"

// Stats is a snapshot of a domain's reclamation bookkeeping: plain
// counters a caller can print or export, not a structured logger.
type Stats struct {
	Slots          int64 `json:"slots"`
	PendingRetires int64 `json:"pending_retires"`
}

// Stats returns a snapshot of d's current slot count and pending
// retire count. Pending is approximate across a concurrent scan, the
// same way mm's allocator counters are snapshots rather than a
// point-in-time truth.
func (d *Domain) Stats() Stats {
	return Stats{
		Slots:          d.slots.count(),
		PendingRetires: loadPending(&d.retired),
	}
}

// StatsJSON renders Stats as JSON for callers that want to log or
// export the snapshot without a structured-logging dependency.
func (d *Domain) StatsJSON() (string, error) {
	buf, err := json.Marshal(d.Stats())
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
