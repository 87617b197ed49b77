// Copyright 2024 Kestrel Engine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		wantCode uint16
		wantMsg  string
		check    func(error) bool
	}{
		{
			name:     "internal",
			err:      NewInternalError("registry slot %d is corrupt", 3),
			wantCode: ErrInternal,
			wantMsg:  "internal error: registry slot 3 is corrupt",
			check:    IsInternal,
		},
		{
			name:     "oom",
			err:      NewOOM(),
			wantCode: ErrOOM,
			wantMsg:  "out of memory",
			check:    IsOOM,
		},
		{
			name:     "bad config",
			err:      NewBadConfig("block size %d", 7),
			wantCode: ErrBadConfig,
			wantMsg:  "invalid configuration: block size 7",
			check:    IsBadConfig,
		},
		{
			name:     "invalid input",
			err:      NewInvalidInput("empty name"),
			wantCode: ErrInvalidInput,
			wantMsg:  "invalid input: empty name",
			check:    IsInvalidInput,
		},
		{
			name:     "invalid state",
			err:      NewInvalidState("registry full"),
			wantCode: ErrInvalidState,
			wantMsg:  "invalid state: registry full",
			check:    IsInvalidState,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.wantCode, tt.err.Code())
			require.Equal(t, tt.wantMsg, tt.err.Error())
			require.True(t, tt.check(tt.err))
		})
	}
}

func TestIsHelpersRejectOtherErrors(t *testing.T) {
	require.False(t, IsOOM(errors.New("out of memory")))
	require.False(t, IsOOM(NewBadConfig("x")))
	require.False(t, IsOOM(nil))
}
