package validate

import "testing"

func TestCheckSlug(t *testing.T) {
	type input struct {
		Slug string `json:"slug" validate:"required,slug"`
	}

	tests := []struct {
		slug string
		ok   bool
	}{
		{"atomic-habits", true},
		{"deep-work-2", true},
		{"Atomic-Habits", false},
		{"atomic--habits", false},
		{"../etc", false},
		{"", false},
	}

	for _, tt := range tests {
		err := Check(input{Slug: tt.slug})
		if (err == nil) != tt.ok {
			t.Errorf("slug %q: got err %v, want ok=%v", tt.slug, err, tt.ok)
		}
	}
}

func TestCheckIDs(t *testing.T) {
	if err := CheckIDs([]string{GenerateID(), GenerateID()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckIDs([]string{GenerateID(), "nope"}); err == nil {
		t.Fatal("expected error for malformed id")
	}
}
