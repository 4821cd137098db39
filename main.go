// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("go-ledgersync - Offline Ledger Synchronization Engine")
	fmt.Println("=====================================================")
	fmt.Println()
	fmt.Println("go-ledgersync queues financial actions captured while merchants are offline")
	fmt.Println("and replays them against the authoritative ledger backend with conflict")
	fmt.Println("detection, deterministic resolution strategies and retry accounting.")
	fmt.Println()
	fmt.Println("Available Examples:")
	fmt.Println()
	fmt.Println("1. Ledger Server Example (examples/ledger_server/)")
	fmt.Println("   A complete offline sync server over PostgreSQL")
	fmt.Println("   Features: JWT auth, queued replay, conflict resolution, retention cleanup")
	fmt.Println("   Run: cd examples/ledger_server && go run .")
	fmt.Println()
}
