package main

import (
	"fmt"
	"time"

	"github.com/magnopus-opensource/csp-realtime/multiplayer"
)

// Sends ten back-to-back patch attempts for the same entity through a
// RateLimiter configured with the default 90ms window, and prints which
// ones are allowed through.
func main() {
	rl := multiplayer.NewRateLimiter(90 * time.Millisecond)

	const entityID = uint64(42)
	start := time.Now()
	for i := 0; i < 10; i++ {
		now := start.Add(time.Duration(i) * 10 * time.Millisecond)
		allowed := rl.AllowAt(entityID, now)
		fmt.Printf("t=%-4s allowed=%v\n", now.Sub(start), allowed)
	}
}
