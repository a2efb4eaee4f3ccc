package locationmsg

import "testing"

func TestBaseID(t *testing.T) {
	cases := map[string]string{
		"post_1_1000":     "post_1",
		"post_42_1700000": "post_42",
		"garbage":         "",
		"":                "",
	}
	for in, want := range cases {
		if got := BaseID(in); got != want {
			t.Errorf("BaseID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFrameFilenameRoundTrip(t *testing.T) {
	name := FrameFilename("post_7_1700000000000", 3, 1700000001234)
	fullID, counter, epochMS, ok := ParseFrameFilename(name)
	if !ok {
		t.Fatalf("ParseFrameFilename(%q) failed to parse", name)
	}
	if fullID != "post_7_1700000000000" {
		t.Errorf("fullID = %q, want post_7_1700000000000", fullID)
	}
	if counter != 3 {
		t.Errorf("counter = %d, want 3", counter)
	}
	if epochMS != 1700000001234 {
		t.Errorf("epochMS = %d, want 1700000001234", epochMS)
	}
	if base := BaseID(fullID); base != "post_7" {
		t.Errorf("BaseID(fullID) = %q, want post_7", base)
	}
}

func TestParseFrameFilenameRejectsGarbage(t *testing.T) {
	if _, _, _, ok := ParseFrameFilename("not-a-frame-file.png"); ok {
		t.Fatal("expected ok=false for non-matching filename")
	}
}
