package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/oasql/query"
)

func TestLoadFile(t *testing.T) {
	t.Parallel()

	set, err := query.LoadFile("testdata/queries.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{"createUser", "getUser", "getUsers"}, set.Names())

	get := set["getUser"]
	assert.Equal(t, query.ModeOne, get.Mode)
	assert.Equal(t, "SELECT id, name FROM users WHERE id = ?", get.SQL)
	assert.Equal(t, map[string]string{"id": query.TypeInteger}, get.Types)

	assert.Equal(t, query.ModeMany, set["getUsers"].Mode)
	assert.Equal(t, query.ModeExec, set["createUser"].Mode)
}

func TestLoadFile_example(t *testing.T) {
	t.Parallel()

	set, err := query.LoadFile("../examples/users/queries.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{"createUser", "deleteUser", "getUser", "getUserByEmail", "listUsers"}, set.Names())
	assert.Equal(t, "DELETE FROM users WHERE id = ?", set["deleteUser"].SQL)
	assert.Equal(t, []string{"limit", "offset"}, set["listUsers"].Names)
}

func TestParseFile_errors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		doc  string
		want string
	}{
		"unknown field": {
			doc:  "queries:\n  q:\n    sql: SELECT 1\n    mode: one\n",
			want: "field mode not found",
		},
		"empty sql": {
			doc:  "queries:\n  q:\n    result: one\n",
			want: "query q: sql is empty",
		},
		"bad template": {
			doc:  "queries:\n  q:\n    sql: \"SELECT #{id\"\n",
			want: "unterminated placeholder",
		},
		"plain sql cut at a placeholder": {
			doc:  "queries:\n  getUser:\n    sql: SELECT id, name FROM users WHERE id = #{id}\n    result: one\n",
			want: "query getUser: sql is cut at a placeholder",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := query.ParseFile([]byte(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseFile_placeholderSyntax(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"double quoted": "queries:\n  q:\n    sql: \"SELECT 1 FROM t WHERE id = #{id}\"\n",
		"single quoted": "queries:\n  q:\n    sql: 'SELECT 1 FROM t WHERE id = #{id}'\n",
		"block scalar":  "queries:\n  q:\n    sql: |\n      SELECT 1 FROM t\n      WHERE id = #{id}\n",
		"no space":      "queries:\n  q:\n    sql: SELECT 1 FROM t WHERE id IN (#{id})\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			set, err := query.ParseFile([]byte(doc))
			require.NoError(t, err)
			assert.Equal(t, []string{"id"}, set["q"].Names)
		})
	}
}

func TestParseFile_empty(t *testing.T) {
	t.Parallel()

	set, err := query.ParseFile(nil)
	require.NoError(t, err)
	assert.Empty(t, set)
}
