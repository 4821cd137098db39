// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"encoding/json"
)

// Conflict describes a divergence between a queued operation's assumptions
// and current server state, detected from the replay response.
type Conflict struct {
	Type string          // duplicate, version_mismatch, deleted
	Data json.RawMessage // Server-side state carried by the response
}

// isConflictCode reports whether a server error code belongs to the closed
// conflict taxonomy. Unrecognized codes are not conflicts.
func isConflictCode(code string) bool {
	switch code {
	case CodeDuplicateOperation, CodeVersionMismatch, CodeResourceNotFound:
		return true
	default:
		return false
	}
}

// ClassifyConflict maps a replay response to a conflict descriptor.
// A nil response or a response without a recognized error code means no
// conflict. Pure function, no side effects.
func ClassifyConflict(resp *ExecResponse) *Conflict {
	if resp == nil {
		return nil
	}
	switch resp.ErrorCode {
	case CodeDuplicateOperation:
		return &Conflict{Type: ConflictDuplicate, Data: resp.Data}
	case CodeVersionMismatch:
		return &Conflict{Type: ConflictVersionMismatch, Data: resp.Data}
	case CodeResourceNotFound:
		return &Conflict{Type: ConflictDeleted, Data: resp.Data}
	default:
		return nil
	}
}
