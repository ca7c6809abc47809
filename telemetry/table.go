// Package telemetry keeps the latest value of every named telemetry signal.
package telemetry

import (
	"sync"
)

// Table is a concurrency safe key/value store of telemetry. Keys that were never set report
// their default.
type Table struct {
	mu       sync.RWMutex
	values   map[string]interface{}
	defaults map[string]interface{}
}

// NewTable creates a table reporting defaults until values are set.
func NewTable(defaults map[string]interface{}) *Table {
	t := &Table{
		values:   map[string]interface{}{},
		defaults: map[string]interface{}{},
	}
	for k, v := range defaults {
		t.defaults[k] = v
	}
	return t
}

func (t *Table) Set(key string, value interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[key] = value
}

func (t *Table) Get(key string) interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.values[key]; ok {
		return v
	}
	return t.defaults[key]
}

// PutNumber stores a numeric value.
func (t *Table) PutNumber(key string, value float64) {
	t.Set(key, value)
}

// Number returns the value of key if it is a float64.
func (t *Table) Number(key string) (float64, bool) {
	v, ok := t.Get(key).(float64)
	return v, ok
}

// All returns a copy of every default overlaid with the values set so far.
func (t *Table) All() map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	toReturn := make(map[string]interface{}, len(t.defaults)+len(t.values))
	for k, v := range t.defaults {
		toReturn[k] = v
	}
	for k, v := range t.values {
		toReturn[k] = v
	}
	return toReturn
}
