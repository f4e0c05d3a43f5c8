package config

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/RezaEskandarii/jobsaga/types"
)

// TranscodeFunc performs one transcode attempt. Returning an error wrapped
// with custom_errors.Permanent stops further retries.
type TranscodeFunc func(ctx context.Context, req types.DispatchTranscode) error

// DefaultHandlerName is the job type whose handler serves job types
// without their own.
const DefaultHandlerName = "default"

// TranscodeHandlers maps job types to handlers.
type TranscodeHandlers struct {
	handlers map[string]TranscodeFunc
	mutex    sync.Mutex
}

func NewTranscodeHandlers() *TranscodeHandlers {
	return &TranscodeHandlers{
		handlers: make(map[string]TranscodeFunc),
	}
}

// Register adds a new handler by job type.
func (th *TranscodeHandlers) Register(jobType string, handler TranscodeFunc) error {
	th.mutex.Lock()
	defer th.mutex.Unlock()

	key := strings.ToLower(strings.TrimSpace(jobType))
	if key == "" || handler == nil {
		return fmt.Errorf("handler must have a job type and function")
	}
	if _, exists := th.handlers[key]; exists {
		return fmt.Errorf("handler '%s' already registered", key)
	}
	th.handlers[key] = handler
	return nil
}

func (th *TranscodeHandlers) Lookup(jobType string) (TranscodeFunc, bool) {
	th.mutex.Lock()
	defer th.mutex.Unlock()

	if handler, ok := th.handlers[strings.ToLower(jobType)]; ok {
		return handler, true
	}
	handler, ok := th.handlers[DefaultHandlerName]
	return handler, ok
}

func (th *TranscodeHandlers) Empty() bool {
	th.mutex.Lock()
	defer th.mutex.Unlock()
	return len(th.handlers) == 0
}

func (th *TranscodeHandlers) List() []string {
	th.mutex.Lock()
	defer th.mutex.Unlock()

	names := make([]string, 0, len(th.handlers))
	for name := range th.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
