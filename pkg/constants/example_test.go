package constants_test

import (
	"fmt"
	"math"

	"github.com/agentstation/swarmcast/pkg/constants"
)

// Example_pendingCap shows how the per-shard pending cap derives from batch size.
func Example_pendingCap() {
	fmt.Println(constants.DefaultMaxBatchSize * constants.PendingCapFactor)
	// Output: 200
}

// Example_backoffCeiling shows the attempt after which backoff stops growing.
func Example_backoffCeiling() {
	ratio := float64(constants.BackoffMax) / float64(constants.BackoffBase)
	fmt.Println(int(math.Ceil(math.Log2(ratio))))
	// Output: 5
}

// Example_heartbeat shows the missed ping counts before degrade and disconnect.
func Example_heartbeat() {
	warn := constants.DefaultHeartbeatWarnTimeout / constants.DefaultHeartbeatInterval
	fail := constants.DefaultHeartbeatFailTimeout / constants.DefaultHeartbeatInterval
	fmt.Println(warn, fail)
	// Output: 2 6
}
