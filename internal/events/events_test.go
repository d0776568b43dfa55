package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/marketplace-ledger/internal/model"
)

func event(seq uint64, kind model.EventKind) model.Event {
	p := model.Product{ID: seq, Name: "Asus Zenfone", Price: model.Units(1), Owner: "0xSeller"}
	return model.NewEvent(kind, seq, p, time.Unix(1700000000, 0).UTC())
}

func TestSequencer(t *testing.T) {
	var s Sequencer
	assert.Equal(t, uint64(1), s.Next())
	assert.Equal(t, uint64(2), s.Next())
	assert.Equal(t, uint64(2), s.Current())
	s.Reset(10)
	assert.Equal(t, uint64(11), s.Next())
}

func TestJournalSince(t *testing.T) {
	j := NewJournal()
	ctx := context.Background()
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, j.Publish(ctx, event(i, model.ProductCreated)))
	}
	assert.Equal(t, 5, j.Len())
	assert.Len(t, j.Since(0, 0), 5)
	got := j.Since(2, 2)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].Sequence)
	assert.Equal(t, uint64(4), got[1].Sequence)
	assert.Empty(t, j.Since(5, 0))

	// returned slices are copies
	got[0].Name = "changed"
	assert.Equal(t, "Asus Zenfone", j.Since(2, 1)[0].Name)
}

func TestFanout(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var seen []string
	rec := func(name string) Sink {
		return SinkFunc(func(_ context.Context, ev model.Event) error {
			mu.Lock()
			seen = append(seen, name)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, Fanout{}.Publish(ctx, event(1, model.ProductCreated)))
	require.NoError(t, Fanout{rec("a"), rec("b"), NewJournal()}.Publish(ctx, event(1, model.ProductCreated)))
	assert.ElementsMatch(t, []string{"a", "b"}, seen)

	failing := SinkFunc(func(context.Context, model.Event) error { return assert.AnError })
	err := Fanout{rec("c"), failing}.Publish(ctx, event(2, model.ProductCreated))
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, Discard.Publish(ctx, event(3, model.ProductCreated)))
	assert.NoError(t, LogSink{}.Publish(ctx, event(3, model.ProductCreated)))
}

func TestFanoutFailureDoesNotCancelSiblings(t *testing.T) {
	failed := make(chan struct{})
	failing := SinkFunc(func(context.Context, model.Event) error {
		close(failed)
		return assert.AnError
	})
	var siblingErr error
	slow := SinkFunc(func(ctx context.Context, _ model.Event) error {
		<-failed
		time.Sleep(10 * time.Millisecond)
		siblingErr = ctx.Err()
		return nil
	})
	err := Fanout{failing, slow}.Publish(context.Background(), event(1, model.ProductCreated))
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, siblingErr)
}

func runNATS(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second), "nats server not ready")
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestNATSSinkPublishesPerKindSubject(t *testing.T) {
	ns := runNATS(t)

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer sub.Close()
	msgs, err := sub.SubscribeSync("marketplace.events.>")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	sink, err := DialNATS(ns.ClientURL(), "marketplace.events")
	require.NoError(t, err)

	ev := event(7, model.ProductPurchased)
	wei, err := model.ParseAmount("1000000000000000000")
	require.NoError(t, err)
	ev.Price = wei
	require.NoError(t, sink.Publish(context.Background(), ev))
	require.NoError(t, sink.Close())

	msg, err := msgs.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "marketplace.events.product_purchased", msg.Subject)

	var got model.Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, uint64(7), got.Sequence)
	assert.Equal(t, "1000000000000000000", got.Price.String())
}

func TestRedisSinkPublishesOnChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ps := rdb.Subscribe(ctx, "marketplace:events")
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	sink, err := DialRedis(ctx, mr.Addr(), "marketplace:events")
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Publish(ctx, event(3, model.ProductCreated)))

	select {
	case msg := <-ps.Channel():
		var got model.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, model.ProductCreated, got.Kind)
		assert.Equal(t, uint64(3), got.ID)
		assert.Equal(t, model.Identity("0xSeller"), got.Owner)
	case <-time.After(5 * time.Second):
		t.Fatal("no message on redis channel")
	}
}

func TestDialRedisFailsFast(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := DialRedis(context.Background(), addr, "x")
	assert.Error(t, err)
}
