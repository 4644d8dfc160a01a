package main

import (
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("reasonslots"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, ctx
}

func TestParseRange(t *testing.T) {
	cli, ctx := parse(t, "range", "3", "-V", "color",
		"--lower", "2024-03-01T08:00:00Z", "--extend", "--limit-upper", "2024-03-02T00:00:00Z")

	assert.Equal(t, "range <machine>", ctx.Command())
	assert.Equal(t, 3, cli.Range.Machine)
	assert.Equal(t, "color", cli.Range.Variant)
	assert.True(t, cli.Range.Ext.Extend)
	require.NotNil(t, cli.cfg, "configuration loaded after parsing")

	opts, err := cli.Range.Ext.options()
	require.NoError(t, err)
	assert.True(t, opts.Extend)
	assert.True(t, opts.Limit.Lower.IsZero())
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), opts.Limit.Upper)
}

func TestParseRejectsUnknownVariant(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("reasonslots"))
	require.NoError(t, err)
	_, err = parser.Parse([]string{"range", "1", "-V", "colour"})
	assert.Error(t, err)
}

func TestWindow(t *testing.T) {
	r, err := window("", "")
	require.NoError(t, err)
	assert.False(t, r.IsEmpty())
	assert.False(t, r.HasLower())
	assert.False(t, r.HasUpper())

	_, err = window("yesterday", "")
	assert.ErrorContains(t, err, `parse time "yesterday"`)
}
