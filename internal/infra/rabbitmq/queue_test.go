package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmqpPriorityInversion(t *testing.T) {
	// Lower job priority value means more urgent; AMQP serves the higher
	// byte first.
	assert.Equal(t, uint8(9), amqpPriority(1))
	assert.Equal(t, uint8(5), amqpPriority(5))
	assert.Equal(t, uint8(0), amqpPriority(10))

	assert.Equal(t, uint8(10), amqpPriority(0))
	assert.Equal(t, uint8(0), amqpPriority(99), "out-of-range values clamp")
	assert.Equal(t, uint8(10), amqpPriority(-3))
}

func TestAmqpPriorityPreservesOrdering(t *testing.T) {
	assert.Greater(t, amqpPriority(1), amqpPriority(2))
	assert.Greater(t, amqpPriority(2), amqpPriority(5))
}
