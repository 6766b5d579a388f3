package webtiles

import "testing"

func TestFieldHelpers(t *testing.T) {
	m := map[string]any{
		"name":  "Sigmund",
		"count": float64(7),
		"done":  true,
	}
	if got := fieldString(m, "name"); got != "Sigmund" {
		t.Errorf("fieldString = %q", got)
	}
	if got := fieldString(m, "missing"); got != "" {
		t.Errorf("fieldString(missing) = %q, want empty", got)
	}
	if got := fieldInt(m, "count"); got != 7 {
		t.Errorf("fieldInt = %d, want 7", got)
	}
	if got := fieldInt(m, "name"); got != 0 {
		t.Errorf("fieldInt(wrong type) = %d, want 0", got)
	}
	if got := fieldBool(m, "done"); !got {
		t.Errorf("fieldBool = false, want true")
	}
}
