package amd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoader(t *testing.T) {
	scripts := NewScriptTable().AddDefinition("greeting.js", Definition{Deps: []string{}, Value: "hello"})
	l := NewLoader(WithFetcher(scripts))
	defer l.Close()

	prev := SetDefault(l)
	defer SetDefault(prev)
	assert.Same(t, l, Default())

	var hooked []error
	OnError(func(err error) { hooked = append(hooked, err) })

	require.NoError(t, Define(Definition{ID: "app", Deps: []string{"greeting"}, Factory: func(g string) string {
		return g + ", world"
	}}))
	err := Define(Definition{ID: "app", Deps: []string{}})
	assert.ErrorIs(t, err, ErrDuplicateDefinition)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	values, err := l.Import(ctx, nil, "app")
	require.NoError(t, err)
	assert.Equal(t, []any{"hello, world"}, values)

	c := NewContext(NewConfig(ConfigDocument{BaseURL: "/isolated"}))
	assert.Same(t, l, c.Loader())
	assert.Equal(t, "/isolated/", c.Config().BaseURL)

	require.NoError(t, l.Do(ctx, func() {}))
	assert.Len(t, hooked, 1)
}

func TestDefaultLoaderIsCreatedOnDemand(t *testing.T) {
	prev := SetDefault(nil)
	defer func() {
		if l := SetDefault(prev); l != nil {
			l.Close()
		}
	}()

	l := Default()
	require.NotNil(t, l)
	assert.Same(t, l, Default())
}
