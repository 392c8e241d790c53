package ids

import "testing"

func TestNewIsMonotonicAndValid(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		if !Valid(next) {
			t.Fatalf("generated id %s reported invalid", next)
		}
		prev = next
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, id := range []string{"", "abc", "../etc/passwd", "not-a-ulid-at-all-xxxxxxxx"} {
		if Valid(id) {
			t.Fatalf("expected %q to be invalid", id)
		}
	}
}
