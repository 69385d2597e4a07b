package services

import (
	"strings"
	"testing"
)

func TestNewStudyIDShape(t *testing.T) {
	for i := 0; i < 100; i++ {
		id, err := NewStudyID()
		if err != nil {
			t.Fatalf("NewStudyID returned error: %v", err)
		}
		if len(id) != studyIDLength {
			t.Fatalf("id %q has length %d", id, len(id))
		}
		for _, r := range id {
			if r < 'a' || r > 'z' {
				t.Fatalf("id %q contains non-lowercase rune %q", id, r)
			}
		}
	}
}

func TestCleanStudyID(t *testing.T) {
	if cleanStudyID("xshitx") {
		t.Fatalf("profane token passed the screen")
	}
	if !cleanStudyID("qwerty") {
		t.Fatalf("harmless token rejected")
	}
}

func TestNewTestID(t *testing.T) {
	a, b := NewTestID(), NewTestID()
	if a == b {
		t.Fatalf("consecutive test ids collided: %s", a)
	}
	if strings.Contains(a, "-") || len(a) != 32 {
		t.Fatalf("unexpected test id shape: %q", a)
	}
}
