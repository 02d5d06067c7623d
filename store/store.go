package store

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Key is the single slot the latest session is stored under.
const Key = "transcriptionData"

var ErrStorage = errors.New("storage failure")

// Record is the persisted result of the last completed session.
type Record struct {
	Transcript string `json:"transcript"`
	AudioURL   string `json:"audioUrl"`
}

// KV is a string key-value store.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// Adapter reads and writes the session record in a KV.
type Adapter struct {
	kv KV
}

func NewAdapter(kv KV) *Adapter {
	return &Adapter{kv: kv}
}

// Restore returns the stored record, or nil when none has been saved.
func (a *Adapter) Restore() (*Record, error) {
	raw, ok, err := a.kv.Get(Key)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorage, Key, err)
	}
	if !ok {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrStorage, Key, err)
	}
	return &rec, nil
}

// Persist overwrites the stored record. Failures are not retried.
func (a *Adapter) Persist(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", ErrStorage, err)
	}
	if err := a.kv.Set(Key, string(data)); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorage, Key, err)
	}
	return nil
}

func (a *Adapter) Clear() error {
	if err := a.kv.Delete(Key); err != nil {
		return fmt.Errorf("%w: clear %s: %v", ErrStorage, Key, err)
	}
	return nil
}
