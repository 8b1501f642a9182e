package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const script = `<script>alert('Hello there')</script>`

func TestString(t *testing.T) {
	cases := map[string]string{
		"Start of body. " + script: "Start of body. ",
		"Smith's":                   "Smith's",
		"a & b":                     "a & b",
		"<b>bold</b>":               "<b>bold</b>",
		"":                          "",
	}
	for in, want := range cases {
		if got := String(in); got != want {
			t.Fatalf("String(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValue_Recursive(t *testing.T) {
	in := map[string]any{
		"subject": "Hi " + script,
		"nested": map[string]any{
			"list": []any{"ok", "x" + script, 3},
		},
		"tags":  []string{"<i>t</i>" + script},
		"count": 2,
		"flag":  true,
	}

	got := Value(in).(map[string]any)

	assert.Equal(t, "Hi ", got["subject"])
	assert.Equal(t, []any{"ok", "x", 3}, got["nested"].(map[string]any)["list"])
	assert.Equal(t, []string{"<i>t</i>"}, got["tags"])
	assert.Equal(t, 2, got["count"])
	assert.Equal(t, true, got["flag"])
	assert.Equal(t, "Hi "+script, in["subject"], "input must not change")
}

func TestMap_Nil(t *testing.T) {
	assert.Nil(t, Map(nil))
}
