package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	channel string
	message any
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message = message
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestDeliverPublishesOnTransactionChannel(t *testing.T) {
	fake := &fakePublisher{}
	p := newPublisher(fake)

	require.NoError(t, p.Deliver("tx-9", []byte(`{"message":"hi"}`)))
	assert.Equal(t, "adminlog:tx:tx-9", fake.channel)
	assert.Equal(t, []byte(`{"message":"hi"}`), fake.message)
}

func TestDeliverWrapsPublishError(t *testing.T) {
	p := newPublisher(&fakePublisher{err: errors.New("READONLY")})

	err := p.Deliver("tx", []byte("{}"))
	assert.ErrorContains(t, err, "adminlog:tx:tx")
	assert.ErrorContains(t, err, "READONLY")
}

func TestNewFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(ctx, Config{Host: "127.0.0.1", Port: "1"})
	assert.ErrorContains(t, err, "failed to connect to Redis at 127.0.0.1:1")

	_, err = Dial(ctx, Config{Host: "127.0.0.1", Port: "1"})
	assert.Error(t, err)
}

func TestConfigOptions(t *testing.T) {
	opts := Config{Host: "2001:db8::5", Port: "6380", Password: "pw", DB: 2}.options()

	assert.Equal(t, "[2001:db8::5]:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, clientName, opts.ClientName)
	assert.Positive(t, opts.DialTimeout)
}

func TestCloseWithoutOwnedConnection(t *testing.T) {
	assert.NoError(t, newPublisher(&fakePublisher{}).Close())
}
