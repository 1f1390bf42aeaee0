package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherSwallowsFailure(t *testing.T) {
	rec := NewRecorder()
	rec.FailFor["u-down"] = assert.AnError
	d := NewDispatcher(rec)
	ctx := context.Background()

	// Neither call may panic or surface an error.
	d.Send(ctx, "u-down", TemplateRappelJ3, nil)
	d.Send(ctx, "u-ok", TemplateRappelJ3, map[string]string{"fund": "Quartier"})

	assert.Equal(t, 0, rec.CountFor("u-down"))
	assert.Equal(t, 1, rec.CountFor("u-ok"))
}

func TestDispatcherNilNotifier(t *testing.T) {
	d := NewDispatcher(nil)
	d.Send(context.Background(), "u-1", TemplateExclusion, nil)
}

func TestRecorderOrder(t *testing.T) {
	rec := NewRecorder()
	ctx := context.Background()
	_ = rec.Notify(ctx, "u-1", TemplateRappelJ3, nil)
	_ = rec.Notify(ctx, "u-1", TemplateRappelJ1, nil)

	assert.Equal(t, []TemplateType{TemplateRappelJ3, TemplateRappelJ1}, rec.TemplatesFor("u-1"))
}
