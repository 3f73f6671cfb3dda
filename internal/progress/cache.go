package progress

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/progression"
)

const (
	recordKeyPrefix     = "progress:record:"
	generationKeyPrefix = "progress:generation:"
)

// RecordCache caches initialized progress records in the kv store. Cache failures
// are never fatal, callers fall back to the repository.
//
// Every entry is stamped with the generation of its user that was current before the
// record was read from the repository. Invalidate starts a new generation, so a read that
// raced a write can not put its older record back.
type RecordCache struct {
	kv  driver.KeyValueDB
	ttl time.Duration
}

type cachedRecord struct {
	Generation string                        `json:"generation"`
	Entries    []*progression.LessonProgress `json:"entries"`
}

// NewRecordCache ttl <= 0 disables the cache
func NewRecordCache(kv driver.KeyValueDB, ttl time.Duration) *RecordCache {
	return &RecordCache{kv: kv, ttl: ttl}
}

func (rc *RecordCache) enabled() bool {
	return rc != nil && rc.kv != nil && rc.ttl > 0
}

// Generation current generation of userID, must be taken before the repository read
// whose result is passed to Set
func (rc *RecordCache) Generation(userID string) (string, error) {
	if !rc.enabled() {
		return "", nil
	}
	gen, err := rc.kv.Get(generationKeyPrefix + userID)
	if errors.Is(err, driver.ErrKeyNotFound) {
		return "", nil
	}
	return gen, err
}

// Get cached record of userID, ok is false on a miss or when the entry belongs to
// an older generation
func (rc *RecordCache) Get(userID string) (record progression.Record, ok bool, err error) {
	if !rc.enabled() {
		return nil, false, nil
	}
	raw, err := rc.kv.Get(recordKeyPrefix + userID)
	if errors.Is(err, driver.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cached cachedRecord
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, false, err
	}
	gen, err := rc.Generation(userID)
	if err != nil {
		return nil, false, err
	}
	if gen != cached.Generation {
		return nil, false, nil
	}
	return progression.NewRecord(cached.Entries), true, nil
}

// Set store record for userID under generation gen
func (rc *RecordCache) Set(userID, gen string, record progression.Record) error {
	if !rc.enabled() {
		return nil
	}
	raw, err := json.Marshal(&cachedRecord{Generation: gen, Entries: record.List()})
	if err != nil {
		return err
	}
	return rc.kv.SetEX(recordKeyPrefix+userID, string(raw), rc.ttl)
}

// Invalidate start a new generation for userID and drop its cached record. Call it
// after the repository write.
func (rc *RecordCache) Invalidate(userID string) error {
	if !rc.enabled() {
		return nil
	}
	// outlives any entry stamped with the previous generation
	if err := rc.kv.SetEX(generationKeyPrefix+userID, uuid.NewString(), 2*rc.ttl); err != nil {
		return err
	}
	return rc.kv.Delete(recordKeyPrefix + userID)
}
