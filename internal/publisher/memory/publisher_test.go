package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "imports", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)

	id2, err := pub.Publish(context.Background(), "imports-dlq", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "imports", msgs[0].Topic)
	require.Equal(t, "imports-dlq", msgs[1].Topic)

	msgs[0].Topic = "modified"
	require.Equal(t, "imports", pub.Messages()[0].Topic, "Messages must return a copy")
}

func TestPublisherFiltersByTopic(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "imports", "a")
	require.NoError(t, err)
	_, err = pub.Publish(context.Background(), "imports-dlq", "b")
	require.NoError(t, err)
	_, err = pub.Publish(context.Background(), "imports", "c")
	require.NoError(t, err)

	byTopic := pub.TopicMessages("imports")
	require.Len(t, byTopic, 2)
	require.Equal(t, "a", byTopic[0].Payload)
	require.Equal(t, "c", byTopic[1].Payload)
	require.Empty(t, pub.TopicMessages("unknown"))
}
