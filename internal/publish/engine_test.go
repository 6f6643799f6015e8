package publish

import "testing"

func TestClassify(t *testing.T) {
	cases := map[string]RejectionClass{
		"":                      ClassOther,
		"duplicate: already have this event": ClassDuplicate,
		"pow: difficulty 20 required":         ClassPoW,
		"blocked: you are banned":             ClassBlocked,
		"rate-limited: slow down":             ClassRateLimited,
		"invalid: bad signature":              ClassInvalid,
		"something unexpected":                ClassOther,
	}
	for reason, want := range cases {
		if got := Classify(reason); got != want {
			t.Errorf("Classify(%q) = %q, want %q", reason, got, want)
		}
	}
}

func TestAllInvalid(t *testing.T) {
	if allInvalid(nil) {
		t.Fatal("no rejections should not count as all-invalid")
	}
	mixed := []ClassifiedRejection{{Class: ClassInvalid}, {Class: ClassOther}}
	if allInvalid(mixed) {
		t.Fatal("mixed classes must not be all-invalid")
	}
	allInv := []ClassifiedRejection{{Class: ClassInvalid}, {Class: ClassInvalid}}
	if !allInvalid(allInv) {
		t.Fatal("expected all-invalid to be true")
	}
}
