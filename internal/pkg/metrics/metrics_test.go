package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAuthOperations_CountsByLabel(t *testing.T) {
	before := testutil.ToFloat64(AuthOperations.WithLabelValues("login", "unauthorized"))

	AuthOperations.WithLabelValues("login", "unauthorized").Inc()
	AuthOperations.WithLabelValues("login", "success").Inc()

	after := testutil.ToFloat64(AuthOperations.WithLabelValues("login", "unauthorized"))
	assert.Equal(t, before+1, after)
}
