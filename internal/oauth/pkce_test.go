package oauth

import "testing"

func TestGenerateCodeVerifier(t *testing.T) {
	v1, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("GenerateCodeVerifier: %v", err)
	}
	if len(v1) != 64 {
		t.Errorf("verifier length = %d, want 64", len(v1))
	}
	for _, r := range v1 {
		isUnreserved := (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
		if !isUnreserved {
			t.Errorf("verifier contains invalid character %q", r)
		}
	}

	v2, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("GenerateCodeVerifier: %v", err)
	}
	if v1 == v2 {
		t.Error("two verifiers are identical")
	}
}

func TestCodeChallengeKnownVector(t *testing.T) {
	// Test vector from RFC 7636 appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got := CodeChallenge(verifier); got != want {
		t.Errorf("CodeChallenge = %q, want %q", got, want)
	}
}
