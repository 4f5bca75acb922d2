package sorter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSink_PublishNeverBlocks(t *testing.T) {
	s := NewSink(2)
	s.Publish(Decision{Lane: 1})
	s.Publish(Decision{Lane: 2})
	s.Publish(Decision{Lane: 3}) // buffer full, dropped

	assert.Equal(t, uint64(1), s.Dropped())
	assert.Equal(t, uint16(1), (<-s.Events()).Lane)
	assert.Equal(t, uint16(2), (<-s.Events()).Lane)
}

func TestSink_CloseEndsStream(t *testing.T) {
	s := NewSink(1)
	s.Close()
	_, open := <-s.Events()
	assert.False(t, open)
}
