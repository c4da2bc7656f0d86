package mailsync

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 5 * time.Second, Max: 30 * time.Second}

	assert.Equal(t, 5*time.Second, b.Delay(0))
	assert.Equal(t, 5*time.Second, b.Delay(1))
	assert.Equal(t, 15*time.Second, b.Delay(3))
	assert.Equal(t, 30*time.Second, b.Delay(6))
	assert.Equal(t, 30*time.Second, b.Delay(1<<40))
}

func TestBackoffProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	genBackoff := gopter.CombineGens(
		gen.Int64Range(1, int64(time.Minute)),
		gen.Int64Range(1, int64(time.Hour)),
	).Map(func(v []interface{}) Backoff {
		base := time.Duration(v[0].(int64))
		max := time.Duration(v[1].(int64))
		if max < base {
			max = base
		}
		return Backoff{Base: base, Max: max}
	})

	properties.Property("non_decreasing_in_attempt", prop.ForAll(
		func(b Backoff, attempt int) bool {
			return b.Delay(attempt) <= b.Delay(attempt+1)
		},
		genBackoff, gen.IntRange(0, 10000),
	))

	properties.Property("bounded_by_max", prop.ForAll(
		func(b Backoff, attempt int) bool {
			d := b.Delay(attempt)
			return d >= b.Base && d <= b.Max
		},
		genBackoff, gen.IntRange(-5, 1<<30),
	))

	properties.Property("reset_returns_base", prop.ForAll(
		func(b Backoff) bool {
			return b.Delay(0) == b.Base
		},
		genBackoff,
	))

	properties.TestingRun(t)
}
