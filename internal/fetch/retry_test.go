package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, 10*time.Millisecond, 100*time.Millisecond)

	assert.False(t, p.ShouldRetry(nil, 1), "no error means no retry")
	assert.True(t, p.ShouldRetry(errors.New("boom"), 1))
	assert.True(t, p.ShouldRetry(errors.New("boom"), 2))
	assert.False(t, p.ShouldRetry(errors.New("boom"), 3), "attempt budget exhausted")
	assert.False(t, p.ShouldRetry(context.Canceled, 1))
}

func TestShouldRetryStatusClasses(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(5, 10*time.Millisecond, 100*time.Millisecond)

	assert.True(t, p.ShouldRetry(&statusError{code: 500}, 1))
	assert.True(t, p.ShouldRetry(&statusError{code: 503}, 1))
	assert.True(t, p.ShouldRetry(&statusError{code: 429}, 1))
	assert.False(t, p.ShouldRetry(&statusError{code: 404}, 1))
	assert.False(t, p.ShouldRetry(&statusError{code: 403}, 1))
}

func TestBackoffStaysBounded(t *testing.T) {
	t.Parallel()

	base := 10 * time.Millisecond
	max := 80 * time.Millisecond
	p := NewExponentialRetryPolicy(10, base, max)

	for attempt := 0; attempt < 10; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, max)
	}
}

func TestPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(0, 0, 0)
	assert.False(t, p.ShouldRetry(errors.New("boom"), 1), "minimum one attempt total")
	assert.Positive(t, p.Backoff(0))
}
