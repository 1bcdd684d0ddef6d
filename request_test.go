package oasql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bjaus/oasql"
)

func TestRequest_accessors(t *testing.T) {
	t.Parallel()

	req := &oasql.Request{
		Params: map[string]any{"id": int64(4), "q": "ada", "on": true},
	}

	v, ok := req.Param("on")
	assert.True(t, ok)
	assert.Equal(t, true, v)
	_, ok = req.Param("missing")
	assert.False(t, ok)

	assert.Equal(t, int64(4), req.Int("id"))
	assert.Equal(t, int64(0), req.Int("q"))
	assert.Equal(t, "ada", req.String("q"))
	assert.Empty(t, req.String("id"))
}

func TestRequest_Values(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		req  *oasql.Request
		want map[string]any
	}{
		"params only": {
			req:  &oasql.Request{Params: map[string]any{"id": int64(1)}},
			want: map[string]any{"id": int64(1)},
		},
		"body under its own key": {
			req: &oasql.Request{
				Params: map[string]any{"id": int64(1)},
				Body:   map[string]any{"name": "Ada"},
			},
			want: map[string]any{"id": int64(1), "body": map[string]any{"name": "Ada"}},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.req.Values())
		})
	}
}
