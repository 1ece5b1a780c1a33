package providers

import "time"

// shutdownTimeout bounds how long the HTTP server and the change feed may
// take to drain open streams on shutdown.
const shutdownTimeout = 30 * time.Second
