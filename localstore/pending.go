package localstore

import "civicanchor-be/models"

// PendingQueue holds records whose upload has not been confirmed. It keeps at
// most one entry per id. An entry leaves the queue only through Remove or
// RemoveVersion after a successful upload, or Clear.
type PendingQueue struct {
	f *file
}

// NewPendingQueue opens the queue file under dir.
func NewPendingQueue(dir string, opts ...Option) *PendingQueue {
	return &PendingQueue{f: newFile(dir, PendingFileName, opts)}
}

// Path returns the backing file location.
func (q *PendingQueue) Path() string { return q.f.path }

// List returns queued records in insertion order.
func (q *PendingQueue) List() ([]models.AnchorRecord, error) {
	q.f.mu.Lock()
	defer q.f.mu.Unlock()
	return q.f.read()
}

// Add appends rec to the queue. A queued entry with the same id is replaced
// in place, so the newest version is the one uploaded.
func (q *PendingQueue) Add(rec models.AnchorRecord) error {
	q.f.mu.Lock()
	defer q.f.mu.Unlock()

	records, err := q.f.read()
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == rec.ID {
			records[i] = rec
			return q.f.write(records)
		}
	}
	return q.f.write(append(records, rec))
}

// Remove drops every entry with id. Unknown ids are a no-op.
func (q *PendingQueue) Remove(id string) error {
	q.f.mu.Lock()
	defer q.f.mu.Unlock()

	records, err := q.f.read()
	if err != nil {
		return err
	}
	kept := records[:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return nil
	}
	return q.f.write(kept)
}

// RemoveVersion drops the entry for rec.ID only if it still equals rec. A
// newer version queued after rec was read stays. It reports whether an entry
// was removed.
func (q *PendingQueue) RemoveVersion(rec models.AnchorRecord) (bool, error) {
	q.f.mu.Lock()
	defer q.f.mu.Unlock()

	records, err := q.f.read()
	if err != nil {
		return false, err
	}
	kept := records[:0]
	removed := false
	for _, r := range records {
		if r == rec {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	if !removed {
		return false, nil
	}
	return true, q.f.write(kept)
}

// Count returns the number of queued entries.
func (q *PendingQueue) Count() (int, error) {
	q.f.mu.Lock()
	defer q.f.mu.Unlock()

	records, err := q.f.read()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Clear empties the queue.
func (q *PendingQueue) Clear() error {
	q.f.mu.Lock()
	defer q.f.mu.Unlock()
	return q.f.write(nil)
}
