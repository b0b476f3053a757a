package app

import (
	"os"
	"sync"
)

// InTestMode reports whether the process runs under the test harness and
// should skip runtime side effects such as listening sockets and pools.
// Controlled by PLACEMENT_TEST_MODE=1.
var InTestMode = sync.OnceValue(func() bool {
	return os.Getenv("PLACEMENT_TEST_MODE") == "1"
})
