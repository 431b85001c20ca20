package audit

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPersistsEmittedEvents(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(8)
	worker := NewWorker(store, nil, pub.Inbox(), slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	pub.Emit(ctx, Event{Kind: KindCustodyTransferred, ActorID: "org-a", ProductID: "p-1"})
	pub.Emit(ctx, Event{Kind: KindCustomerVerified, ActorID: "org-b", ProductID: "p-1"})

	require.Eventually(t, func() bool {
		return len(store.All()) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	events := store.All()
	assert.Equal(t, KindCustodyTransferred, events[0].Kind)
	assert.False(t, events[0].Timestamp.IsZero())

	byActor, err := store.ListByActor(context.Background(), "org-b")
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, KindCustomerVerified, byActor[0].Kind)
}

func TestEmitNeverBlocksWhenInboxFull(t *testing.T) {
	pub := NewPublisher(1)
	ctx := context.Background()

	pub.Emit(ctx, Event{Kind: KindProductCreated})

	done := make(chan struct{})
	go func() {
		defer close(done)
		pub.Emit(ctx, Event{Kind: KindProductCreated})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full inbox")
	}
}
