// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyConflict(t *testing.T) {
	serverState := json.RawMessage(`{"id": "srv-1", "version": 4}`)

	cases := []struct {
		name string
		resp *ExecResponse
		want string // "" means no conflict
	}{
		{"nil response", nil, ""},
		{"empty response", &ExecResponse{}, ""},
		{"success with data", &ExecResponse{ServerID: "srv-1", Data: serverState}, ""},
		{"duplicate", &ExecResponse{ErrorCode: CodeDuplicateOperation, Data: serverState}, ConflictDuplicate},
		{"version mismatch", &ExecResponse{ErrorCode: CodeVersionMismatch, Data: serverState}, ConflictVersionMismatch},
		{"deleted target", &ExecResponse{ErrorCode: CodeResourceNotFound}, ConflictDeleted},
		{"unrecognized code", &ExecResponse{ErrorCode: "RATE_LIMITED"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyConflict(tc.resp)
			if tc.want == "" {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, tc.want, got.Type)
			if tc.resp.Data != nil {
				require.Equal(t, tc.resp.Data, got.Data)
			}
		})
	}
}

func TestClassifyConflictHasNoSideEffects(t *testing.T) {
	resp := &ExecResponse{ErrorCode: CodeVersionMismatch, Data: json.RawMessage(`{"version": 2}`)}
	before := *resp
	_ = ClassifyConflict(resp)
	_ = ClassifyConflict(resp)
	require.Equal(t, before, *resp)
}
