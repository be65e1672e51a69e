package localstore

import "civicanchor-be/models"

// Cache is the full local copy of anchors this device has written.
type Cache struct {
	f *file
}

// NewCache opens the cache file under dir. Nothing touches disk until the
// first operation.
func NewCache(dir string, opts ...Option) *Cache {
	return &Cache{f: newFile(dir, CacheFileName, opts)}
}

// Path returns the backing file location.
func (c *Cache) Path() string { return c.f.path }

// Load returns every cached record.
func (c *Cache) Load() ([]models.AnchorRecord, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	return c.f.read()
}

// Save overwrites the cache with records.
func (c *Cache) Save(records []models.AnchorRecord) error {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	return c.f.write(records)
}

// Upsert replaces the record with the same id or appends it.
func (c *Cache) Upsert(rec models.AnchorRecord) error {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()

	records, err := c.f.read()
	if err != nil {
		return err
	}
	replaced := false
	for i := range records {
		if records[i].ID == rec.ID {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	return c.f.write(records)
}
