package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloseAll_ContinuesAfterFailure(t *testing.T) {
	var order []string
	errRedis := errors.New("connection reset")
	track := func(name string, err error) closer {
		return closer{name, func(context.Context) error {
			order = append(order, name)
			return err
		}}
	}

	err := closeAll(context.Background(), []closer{
		track("rabbitmq", nil),
		track("redis", errRedis),
		track("postgres", nil),
	})

	assert.Equal(t, []string{"rabbitmq", "redis", "postgres"}, order)
	assert.ErrorIs(t, err, errRedis)
	assert.Contains(t, err.Error(), "close redis")
}

func TestClose_NothingInitialized(t *testing.T) {
	assert.NoError(t, Close())
}
