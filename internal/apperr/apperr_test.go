package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageIncludesOpAndSubject(t *testing.T) {
	err := Remote("open", "/srv/data.bin", errors.New("permission denied"))
	assert.Equal(t, "open /srv/data.bin: permission denied", err.Error())

	err = SessionNotFound("list", "prod")
	assert.Equal(t, "list prod: session not found", err.Error())

	assert.Equal(t, "cancelled", (&Error{Kind: KindCancelled}).Error())
}

func TestKindOfWrappedError(t *testing.T) {
	base := Filesystem("create", "/tmp/x", errors.New("read-only file system"))
	wrapped := fmt.Errorf("download: %w", base)

	assert.Equal(t, KindFilesystem, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindFilesystem))
	assert.False(t, Is(wrapped, KindRemoteOp))
}

func TestKindOfDefaults(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindTaskFailure, KindOf(errors.New("boom")))
	assert.Equal(t, KindCancelled, KindOf(fmt.Errorf("wait: %w", context.Canceled)))
}

func TestSentinelsThroughChain(t *testing.T) {
	assert.ErrorIs(t, TransferNotFound("t-1"), ErrTransferNotFound)
	assert.ErrorIs(t, Cancelled("download", "t-1"), ErrCancelled)
	assert.True(t, IsCancelled(Cancelled("upload", "t-2")))
}
