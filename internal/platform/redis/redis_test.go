package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/config"
	"github.com/phrazzld/nailart-api/internal/events"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublish struct {
	channel     string
	message     interface{}
	err         error
	hang        bool
	hadDeadline bool
}

func (f *fakePublish) Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd {
	f.channel, f.message = channel, message
	_, f.hadDeadline = ctx.Deadline()
	cmd := goredis.NewIntCmd(ctx)
	if f.hang {
		<-ctx.Done()
		cmd.SetErr(ctx.Err())
		return cmd
	}
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestPublisher_HandleEvent(t *testing.T) {
	t.Parallel()

	fake := &fakePublish{}
	p := newPublisher(fake, "", nil)
	event := events.NewTaskEvent(events.TypeTaskSubmitted, uuid.New(), uuid.New())

	require.NoError(t, p.HandleEvent(context.Background(), event))
	assert.Equal(t, DefaultChannel, fake.channel)
	assert.True(t, fake.hadDeadline)

	payload, ok := fake.message.([]byte)
	require.True(t, ok)
	decoded, err := events.Unmarshal(payload)
	require.NoError(t, err)
	assert.Equal(t, event.TaskID, decoded.TaskID)
}

func TestPublisher_HandleEventError(t *testing.T) {
	t.Parallel()

	p := newPublisher(&fakePublish{err: errors.New("connection reset")}, "custom", nil)
	err := p.HandleEvent(context.Background(), events.NewTaskEvent(events.TypeTaskSubmitted, uuid.New(), uuid.New()))
	assert.ErrorContains(t, err, "failed to publish task event")
}

func TestPublisher_HandleEventTimesOut(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  func() context.Context
	}{
		{"no caller deadline", context.Background},
		{"detached caller", func() context.Context { return context.WithoutCancel(context.Background()) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := newPublisher(&fakePublish{hang: true}, "", nil)
			p.timeout = 20 * time.Millisecond

			start := time.Now()
			err := p.HandleEvent(tc.ctx(), events.NewTaskEvent(events.TypeTaskSubmitted, uuid.New(), uuid.New()))
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestSubscriber_Deliver(t *testing.T) {
	t.Parallel()

	var got []*events.TaskEvent
	handler := events.HandlerFunc(func(_ context.Context, e *events.TaskEvent) error {
		got = append(got, e)
		return nil
	})
	s := NewSubscriber(nil, "", handler, nil)

	event := events.NewTaskEvent(events.TypeTaskSubmitted, uuid.New(), uuid.New())
	payload, err := event.Marshal()
	require.NoError(t, err)

	s.deliver(context.Background(), string(payload))
	s.deliver(context.Background(), "not json")

	require.Len(t, got, 1)
	assert.Equal(t, event.TaskID, got[0].TaskID)
}

func TestNewClient_NotConfigured(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), config.RedisConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient(context.Background(), config.RedisConfig{URL: "://bad"})
	assert.Error(t, err)
}
