package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewBus()
	a := b.Subscribe()
	c := b.Subscribe()
	defer b.Unsubscribe(c)

	b.Publish(Event{Type: TypeTradeRecorded, TraderID: "t1"})

	evt := <-a
	assert.Equal(t, TypeTradeRecorded, evt.Type)
	assert.False(t, evt.TS.IsZero())
	assert.Equal(t, "t1", (<-c).TraderID)

	b.Unsubscribe(a)
	_, ok := <-a
	assert.False(t, ok)
	b.Unsubscribe(a)
}

func TestBus_DropsWhenFull(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 150; i++ {
		b.Publish(Event{Type: TypeTradeRecorded})
	}
	require.Len(t, ch, 100)
}
