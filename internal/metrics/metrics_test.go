package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestServe_EmptyAddrDisabled(t *testing.T) {
	assert.NoError(t, Serve(context.Background(), ""))
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, Serve(ctx, "127.0.0.1:0"))
}

func TestCollectors_Registered(t *testing.T) {
	before := testutil.ToFloat64(Commands.WithLabelValues("imagine"))
	Commands.WithLabelValues("imagine").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Commands.WithLabelValues("imagine")))

	Generations.WithLabelValues("success").Inc()
	PollAttempts.Observe(3)
	assert.Positive(t, testutil.CollectAndCount(PollAttempts))
}
