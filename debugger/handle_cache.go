package debugger

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/fansqz/node-debugger/protocol"
	"github.com/fansqz/node-debugger/utils"
	"github.com/sirupsen/logrus"
)

// HandleCache caches resolved runtime mirrors for the duration of one stop.
// Handles are only stable while the debuggee is paused, so the orchestrator
// clears the cache on every stop and on every resume.
//
// Lookups are batched: callers collect the handles a whole view needs and
// resolve them in a single lookup round trip. A failed lookup caches an error
// placeholder per handle so one broken mirror cannot re-trigger the round
// trip for the rest of the view.
type HandleCache struct {
	client *protocol.Client

	mu    sync.Mutex
	cache map[int]*protocol.V8Object
}

func NewHandleCache(client *protocol.Client) *HandleCache {
	return &HandleCache{
		client: client,
		cache:  map[int]*protocol.V8Object{},
	}
}

// Put stores mirrors that arrived for free in a response refs block.
func (h *HandleCache) Put(objects []protocol.V8Object) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range objects {
		object := objects[i]
		h.cache[object.Handle] = &object
	}
}

// Resolve makes every requested handle available in the cache, fetching the
// missing ones in one batched lookup.
func (h *HandleCache) Resolve(ctx context.Context, handles []int) error {
	missing := hashset.New()
	h.mu.Lock()
	for _, handle := range handles {
		if _, ok := h.cache[handle]; !ok {
			missing.Add(handle)
		}
	}
	h.mu.Unlock()
	if missing.Empty() {
		return nil
	}

	batch := utils.Set2IntList(missing)
	response, err := h.client.Command(ctx, "lookup", &protocol.LookupArgs{Handles: batch})
	if err == nil && !response.Success {
		err = fmt.Errorf("lookup failed: %s", response.Message)
	}
	if err != nil {
		logrus.Warnf("[Variables] lookup of %d handles failed: %v", len(batch), err)
		h.mu.Lock()
		for _, handle := range batch {
			h.cache[handle] = &protocol.V8Object{
				Handle: handle,
				Type:   protocol.V8TypeError,
				Text:   "<error: " + err.Error() + ">",
			}
		}
		h.mu.Unlock()
		return nil
	}

	body := protocol.LookupResponseBody{}
	if err := response.BodyAs(&body); err != nil {
		return err
	}
	h.mu.Lock()
	for key, object := range body {
		handle, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		o := object
		o.Handle = handle
		h.cache[handle] = &o
	}
	// handles the runtime silently skipped get a placeholder too
	for _, handle := range batch {
		if _, ok := h.cache[handle]; !ok {
			h.cache[handle] = &protocol.V8Object{
				Handle: handle,
				Type:   protocol.V8TypeError,
				Text:   "<unknown>",
			}
		}
	}
	h.mu.Unlock()
	h.Put(response.Refs)
	return nil
}

// Get returns a cached mirror.
func (h *HandleCache) Get(handle int) (*protocol.V8Object, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	object, ok := h.cache[handle]
	return object, ok
}

// Lookup resolves a single handle.
func (h *HandleCache) Lookup(ctx context.Context, handle int) (*protocol.V8Object, error) {
	if object, ok := h.Get(handle); ok {
		return object, nil
	}
	if err := h.Resolve(ctx, []int{handle}); err != nil {
		return nil, err
	}
	object, _ := h.Get(handle)
	return object, nil
}

// Clear drops every cached mirror. Called on stop and on resume.
func (h *HandleCache) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache = map[int]*protocol.V8Object{}
}
