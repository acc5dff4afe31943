package printer

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrinterPlain(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	p := New(&buf)
	p.Success("imported %d labels", 3)
	p.Warning("cache disabled")
	p.Failure("collision on %q", "pond")
	p.Info("plain")
	p.Field("buckets", 12)

	assert.Equal(t, "✓ imported 3 labels\n! cache disabled\n✗ collision on \"pond\"\nplain\n  buckets:       12\n", buf.String())
}
