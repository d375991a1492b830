package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActions(t *testing.T) {
	tests := []struct {
		in      []string
		want    Actions
		wantErr bool
	}{
		{nil, ActionPatch, false},
		{[]string{"patch"}, ActionPatch, false},
		{[]string{"create"}, ActionCreate, false},
		{[]string{"Update", " delete "}, ActionUpdate | ActionDelete, false},
		{[]string{"create,restore"}, ActionCreate | ActionRestore, false},
		{[]string{""}, ActionPatch, false},
		{[]string{"archive"}, 0, true},
	}

	for _, tt := range tests {
		got, err := ParseActions(tt.in...)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.in)
			continue
		}
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestActions_Has(t *testing.T) {
	assert.True(t, ActionPatch.IsPatch())
	assert.False(t, ActionCreate.IsPatch())
	assert.True(t, (ActionCreate | ActionDelete).Has(ActionDelete))
	assert.False(t, ActionCreate.Has(0))
	assert.Equal(t, "create,update", ActionPatch.String())
	assert.Equal(t, "none", Actions(0).String())
}

func TestMemoryLocker_Exclusive(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "user:42")
	require.NoError(t, err)

	// Other names are independent
	other, err := l.Lock(ctx, "user:43")
	require.NoError(t, err)
	other()

	acquired := make(chan struct{})
	go func() {
		u, err := l.Lock(ctx, "user:42")
		if err == nil {
			u()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	unlock() // idempotent

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock not handed over")
	}
}

func TestMemoryLocker_ContextCancel(t *testing.T) {
	l := NewMemoryLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
