package path_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykernel/substrate/substrate/path"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"api://users/42",
		"kernel://event/kernel-bootstrapped",
		"chat://room/1/msg",
		"api://",
	}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			p, err := path.Parse(raw)
			require.NoError(t, err)
			p2, err := path.Parse(p.String())
			require.NoError(t, err)
			assert.True(t, p.Equal(p2))
		})
	}
}

func TestParseRejectsMissingSeparator(t *testing.T) {
	_, err := path.Parse("not-a-path")
	assert.Error(t, err)
}

func TestParseRejectsInvalidScheme(t *testing.T) {
	_, err := path.Parse("API://users/42")
	assert.Error(t, err)
}

func TestSchemeFastPath(t *testing.T) {
	s, err := path.Scheme("worker://compute")
	require.NoError(t, err)
	assert.Equal(t, "worker", s)
}

func TestCompilePatternStaticVsDynamic(t *testing.T) {
	p1, err := path.CompilePattern("api://users/list")
	require.NoError(t, err)
	assert.True(t, p1.IsStatic())

	p2, err := path.CompilePattern("api://users/{id}")
	require.NoError(t, err)
	assert.False(t, p2.IsStatic())
}

func TestPatternMatchLiteralAndParam(t *testing.T) {
	p, err := path.CompilePattern("api://users/{id}")
	require.NoError(t, err)

	params, ok := p.Match("api://users/42")
	require.True(t, ok)
	assert.Equal(t, "42", params["id"])

	_, ok = p.Match("api://users/42/delete")
	assert.False(t, ok)

	_, ok = p.Match("other://users/42")
	assert.False(t, ok)
}

func TestPatternMatchWildcardSuffix(t *testing.T) {
	p, err := path.CompilePattern("static://assets/*")
	require.NoError(t, err)

	params, ok := p.Match("static://assets/css/app.css")
	require.True(t, ok)
	assert.Equal(t, "css/app.css", params["*"])

	params, ok = p.Match("static://assets")
	require.True(t, ok)
	assert.Equal(t, "", params["*"])
}

func TestCompilePatternRejectsMidRouteWildcard(t *testing.T) {
	_, err := path.CompilePattern("api://*/delete")
	assert.Error(t, err)
}
