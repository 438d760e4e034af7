package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimestamp_Key64Ordering(t *testing.T) {
	a := Timestamp{Seconds: 100, Nanos: 500}
	b := Timestamp{Seconds: 100, Nanos: 600}
	c := Timestamp{Seconds: 101, Nanos: 0}

	assert.Less(t, a.Key64(), b.Key64())
	assert.Less(t, b.Key64(), c.Key64())
	assert.True(t, b.After(a))
	assert.False(t, a.After(b))
}

func TestValue_ScalarAndInvalid(t *testing.T) {
	v := Value{Severity: SeverityNone, Buffer: []float64{3.14}}
	assert.False(t, v.Invalid())
	assert.Equal(t, 3.14, v.Scalar())

	sentinel := InvalidSentinel(Timestamp{Seconds: 5})
	assert.True(t, sentinel.Invalid())
	assert.Equal(t, 0.0, sentinel.Scalar())
}
