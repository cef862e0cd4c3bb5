package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

type decoderFunc func(payload json.RawMessage) (interface{}, error)

// DecoderRegistry holds one payload decoder per event type and schema
// version. A row whose version has no decoder is a producer bug, so the
// relay dead-letters it rather than retrying.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	versions map[enums.OutboxEventType]map[int]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{versions: make(map[enums.OutboxEventType]map[int]decoderFunc)}
}

// Register adds the decoder for eventType at version. Registering the same
// pair twice is an error.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) error {
	if version <= 0 {
		return fmt.Errorf("%s: schema version must be positive, got %d", eventType, version)
	}
	if decoder == nil {
		return fmt.Errorf("%s@v%d: decoder is nil", eventType, version)
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	byVersion, ok := r.versions[eventType]
	if !ok {
		byVersion = make(map[int]decoderFunc)
		r.versions[eventType] = byVersion
	}
	if _, dup := byVersion[version]; dup {
		return fmt.Errorf("%s@v%d registered twice", eventType, version)
	}
	byVersion[version] = decoder
	return nil
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error) {
	r.mtx.RLock()
	decoder, ok := r.versions[eventType][version]
	known := r.knownVersionsLocked(eventType)
	r.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no decoder for %s@v%d (known versions %v)", eventType, version, known)
	}
	return decoder(payload)
}

// Missing returns the event types in want that have no decoder at all.
func (r *DecoderRegistry) Missing(want []enums.OutboxEventType) []enums.OutboxEventType {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	var missing []enums.OutboxEventType
	for _, eventType := range want {
		if len(r.versions[eventType]) == 0 {
			missing = append(missing, eventType)
		}
	}
	return missing
}

func (r *DecoderRegistry) knownVersionsLocked(eventType enums.OutboxEventType) []int {
	out := make([]int, 0, len(r.versions[eventType]))
	for v := range r.versions[eventType] {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
