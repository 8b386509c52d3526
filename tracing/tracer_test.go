package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerProviderExportsSpans(t *testing.T) {
	var buf bytes.Buffer

	tp, err := InitTracerProvider(Options{ServiceName: "authd-test", Output: &buf})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := otel.Tracer("test").Start(context.Background(), "issue-token")
	span.End()

	require.NoError(t, Flush(context.Background(), tp))

	out := buf.String()
	assert.Contains(t, out, `"Name":"issue-token"`)
	assert.Contains(t, out, "authd-test")
}

func TestFlushNilProvider(t *testing.T) {
	assert.NoError(t, Flush(context.Background(), nil))
}
