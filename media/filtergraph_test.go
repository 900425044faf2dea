package media

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscapeText(t *testing.T) {
	require.Equal(t, "plain words", EscapeText("plain words"))
	require.Equal(t, `It\\\'s 50% off\\: now`, EscapeText("It's 50% off: now"))
	require.Equal(t, `a\,b\;c\[d\]`, EscapeText("a,b;c[d]"))
	require.Equal(t, `back\\\\slash`, EscapeText(`back\slash`))
}

func TestFilterString(t *testing.T) {
	f := NewFilter("drawtext").
		Text("text", "Don't Skip This!").
		Set("fontsize", "64").
		Enable("points", Window{Start: 1, End: 3})

	require.Equal(t,
		`drawtext=text=Don\\\'t Skip This!:fontsize=64:enable='between(t,1.000,3.000)'`,
		f.String())
	require.Equal(t, "null", NewFilter("null").String())
}

func TestGraphString(t *testing.T) {
	g := NewGraph().
		Chain([]string{"0:v", "1:v"}, "x1", NewFilter("xfade").Set("transition", "fade").Set("duration", "0.300").Set("offset", "2.200")).
		Chain([]string{"x1", "2:v"}, "vout", NewFilter("xfade").Set("transition", "fade").Set("duration", "0.300").Set("offset", "4.400"))

	require.NoError(t, g.Validate())
	require.Equal(t,
		"[0:v][1:v]xfade=transition=fade:duration=0.300:offset=2.200[x1];[x1][2:v]xfade=transition=fade:duration=0.300:offset=4.400[vout]",
		g.String())
}

func TestGraphValidate_Labels(t *testing.T) {
	g := NewGraph().Chain([]string{"missing"}, "out", NewFilter("null"))
	require.ErrorContains(t, g.Validate(), "used before")

	g = NewGraph().
		Chain([]string{"0:v"}, "a", NewFilter("null")).
		Chain([]string{"a"}, "b", NewFilter("null")).
		Chain([]string{"a"}, "c", NewFilter("null"))
	require.ErrorContains(t, g.Validate(), "consumed twice")

	require.Error(t, NewGraph().Validate())
}

func TestGraphValidate_Windows(t *testing.T) {
	touching := NewGraph().Within(10).Chain(nil, "",
		NewFilter("drawtext").Text("text", "a").Enable("points", Window{Start: 1, End: 3}),
		NewFilter("drawtext").Text("text", "b").Enable("points", Window{Start: 3, End: 5}),
	)
	require.NoError(t, touching.Validate())

	overlapping := NewGraph().Chain(nil, "",
		NewFilter("drawtext").Text("text", "a").Enable("points", Window{Start: 1, End: 3}),
		NewFilter("drawtext").Text("text", "b").Enable("points", Window{Start: 2.5, End: 4}),
	)
	require.ErrorContains(t, overlapping.Validate(), "overlap")

	otherGroups := NewGraph().Chain(nil, "",
		NewFilter("drawtext").Text("text", "a").Enable("points", Window{Start: 1, End: 3}),
		NewFilter("drawtext").Text("text", "b").Enable("cta", Window{Start: 2, End: 4}),
	)
	require.NoError(t, otherGroups.Validate())

	outOfRange := NewGraph().Within(4).Chain(nil, "",
		NewFilter("drawtext").Text("text", "a").Enable("points", Window{Start: 3, End: 5}),
	)
	require.ErrorContains(t, outOfRange.Validate(), "ends after")

	inverted := NewGraph().Chain(nil, "",
		NewFilter("drawtext").Text("text", "a").Enable("points", Window{Start: 3, End: 3}),
	)
	require.ErrorContains(t, inverted.Validate(), "invalid window")
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("62.480000\n")
	require.NoError(t, err)
	require.InDelta(t, 62.48, d, 1e-9)

	_, err = ParseDuration("N/A")
	require.Error(t, err)
	_, err = ParseDuration("0")
	require.Error(t, err)
}
