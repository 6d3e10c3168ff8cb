package replybot

import (
	"strings"
	"sync"
	"sync/atomic"
)

var (
	debugMode   atomic.Bool
	testPersona struct {
		sync.RWMutex
		id string
	}
)

// SetDebugMode toggles process-wide debug behavior: chance conditions always
// pass and sender matches narrow to the test persona.
func SetDebugMode(enabled bool) {
	debugMode.Store(enabled)
}

func DebugMode() bool {
	return debugMode.Load()
}

func SetTestPersona(id string) {
	testPersona.Lock()
	defer testPersona.Unlock()
	testPersona.id = strings.TrimSpace(id)
}

func TestPersona() string {
	testPersona.RLock()
	defer testPersona.RUnlock()
	return testPersona.id
}
