package fingerprint

import "testing"

func TestFingerprint_InsertionOrderIndependent(t *testing.T) {
	c1 := Context{
		"user":    {"id": "u-1", "name": "Ada", "plan": "pro"},
		"company": {"id": "c-9", "tier": 2},
	}
	c2 := Context{
		"company": {"tier": 2, "id": "c-9"},
		"user":    {"plan": "pro", "id": "u-1", "name": "Ada"},
	}

	if Fingerprint(c1) != Fingerprint(c2) {
		t.Errorf("same logical context produced different fingerprints:\n%s\n%s",
			Canonical(c1), Canonical(c2))
	}
}

func TestFingerprint_NilAttributesOmitted(t *testing.T) {
	withNil := Context{"user": {"id": "u-1", "email": nil}}
	without := Context{"user": {"id": "u-1"}}

	if Fingerprint(withNil) != Fingerprint(without) {
		t.Error("nil attribute changed the fingerprint")
	}
}

func TestFingerprint_EmptyActorOmitted(t *testing.T) {
	withEmpty := Context{"user": {"id": "u-1"}, "company": {}}
	without := Context{"user": {"id": "u-1"}}

	if Fingerprint(withEmpty) != Fingerprint(without) {
		t.Error("empty actor changed the fingerprint")
	}
}

func TestFingerprint_DistinctContextsDiffer(t *testing.T) {
	a := Context{"user": {"id": "u-1"}}
	b := Context{"user": {"id": "u-2"}}
	c := Context{"company": {"id": "u-1"}}

	if Fingerprint(a) == Fingerprint(b) {
		t.Error("different user ids collided")
	}
	if Fingerprint(a) == Fingerprint(c) {
		t.Error("same attributes under different actors collided")
	}
}

func TestFingerprint_ValueTypesDistinguished(t *testing.T) {
	asString := Context{"user": {"id": "1"}}
	asNumber := Context{"user": {"id": 1}}

	if Fingerprint(asString) == Fingerprint(asNumber) {
		t.Error(`"1" and 1 should fingerprint differently`)
	}
}

func TestUserID(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want string
	}{
		{"string id", Context{"user": {"id": "u-1"}}, "u-1"},
		{"numeric id", Context{"user": {"id": 42}}, "42"},
		{"no user actor", Context{"company": {"id": "c-1"}}, ""},
		{"nil id", Context{"user": {"id": nil}}, ""},
		{"empty context", Context{}, ""},
	}
	for _, tt := range tests {
		if got := tt.ctx.UserID(); got != tt.want {
			t.Errorf("%s: UserID() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestClone_Independent(t *testing.T) {
	orig := Context{"user": {"id": "u-1"}}
	copied := orig.Clone()

	orig["user"]["id"] = "mutated"
	if copied["user"]["id"] != "u-1" {
		t.Error("Clone shares attribute storage with the original")
	}
}
