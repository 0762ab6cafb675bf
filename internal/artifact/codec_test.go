package artifact

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func sampleArtifact() *Artifact {
	a := &Artifact{
		Version:     "1",
		Environment: "production",
		Strings:     []string{"flagA", "country", "US"},
		FlagNames:   []uint16{0},
		Flags: [][]Rule{
			{
				{
					Kind: RuleServe,
					Guard: &Expr{
						Kind:     ExprBinaryOp,
						BinaryOp: OpEQ,
						Left:     &Expr{Kind: ExprProperty, PathIndex: 1},
						Right:    &Expr{Kind: ExprLiteral, Literal: Literal{Kind: LitStringRef, StrRef: 2}},
					},
					Serve: &Expr{Kind: ExprLiteral, Literal: Literal{Kind: LitBool, Bool: true}},
				},
			},
		},
	}
	if err := a.buildFlagIndex(); err != nil {
		panic(err)
	}
	return a
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := sampleArtifact()
	buf, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Version != original.Version || decoded.Environment != original.Environment {
		t.Fatalf("round trip changed top-level fields: %+v", decoded)
	}
	idx, ok := decoded.FlagIndex("flagA")
	if !ok || idx != 0 {
		t.Fatalf("FlagIndex(flagA) = %d, %v, want 0, true", idx, ok)
	}
	if len(decoded.Flags) != 1 || len(decoded.Flags[0]) != 1 {
		t.Fatalf("unexpected flags shape: %+v", decoded.Flags)
	}
	rule := decoded.Flags[0][0]
	if rule.Kind != RuleServe || rule.Guard == nil || rule.Serve == nil {
		t.Fatalf("round trip lost rule shape: %+v", rule)
	}
}

func TestDecodeRejectsOversizedBuffer(t *testing.T) {
	buf := make([]byte, MaxArtifactBytes+1)
	_, err := Decode(buf)
	assertCode(t, err, CodeInvalidArtifact)
}

func TestDecodeRejectsNonMapTopLevel(t *testing.T) {
	buf, err := msgpack.Marshal([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	_, err = Decode(buf)
	assertCode(t, err, CodeInvalidArtifact)
}

func TestDecodeRejectsMissingRequiredFields(t *testing.T) {
	buf, err := msgpack.Marshal(map[string]any{
		"env":       "production",
		"strs":      []string{},
		"flags":     [][]any{},
		"flagNames": []uint16{},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	_, err = Decode(buf)
	assertCode(t, err, CodeInvalidArtifact)
}

func TestDecodeRejectsFlagNamesLengthMismatch(t *testing.T) {
	buf, err := msgpack.Marshal(map[string]any{
		"v":         "1",
		"env":       "production",
		"strs":      []string{"flagA"},
		"flags":     [][]any{},
		"flagNames": []uint16{0},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	_, err = Decode(buf)
	assertCode(t, err, CodeInvalidArtifact)
}

func TestDecodeRejectsFlagNameOutOfRange(t *testing.T) {
	buf, err := msgpack.Marshal(map[string]any{
		"v":         "1",
		"env":       "production",
		"strs":      []string{"flagA"},
		"flags":     [][]any{{}},
		"flagNames": []uint16{5},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	_, err = Decode(buf)
	assertCode(t, err, CodeInvalidArtifact)
}

func TestDecodeRejectsOversizedStringTableEntry(t *testing.T) {
	huge := make([]byte, MaxStringLen+1)
	for i := range huge {
		huge[i] = 'x'
	}
	buf, err := msgpack.Marshal(map[string]any{
		"v":         "1",
		"env":       "production",
		"strs":      []string{string(huge)},
		"flags":     [][]any{},
		"flagNames": []uint16{},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	_, err = Decode(buf)
	assertCode(t, err, CodeInvalidArtifact)
}

func TestLoadSignatureRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	a := sampleArtifact()
	sig, err := SignWithKey(a, priv)
	if err != nil {
		t.Fatalf("SignWithKey: %v", err)
	}
	a.Signature = sig

	buf, err := Encode(a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	loaded, err := Load(buf, VerifyOptions{PublicKey: []byte(pub), RequireSignature: true})
	if err != nil {
		t.Fatalf("Load with valid signature: %v", err)
	}
	if loaded.Version != a.Version {
		t.Fatalf("loaded artifact mismatch: %+v", loaded)
	}

	b64 := base64.StdEncoding.EncodeToString(pub)
	if _, err := Load(buf, VerifyOptions{PublicKey: b64, RequireSignature: true}); err != nil {
		t.Fatalf("Load with base64 key: %v", err)
	}

	hexKey := hex.EncodeToString(pub)
	if _, err := Load(buf, VerifyOptions{PublicKey: hexKey, RequireSignature: true}); err != nil {
		t.Fatalf("Load with hex key: %v", err)
	}
}

func TestLoadDetectsTamperedSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	a := sampleArtifact()
	sig, err := SignWithKey(a, priv)
	if err != nil {
		t.Fatalf("SignWithKey: %v", err)
	}
	a.Signature = sig
	a.Environment = "staging" // flip signed content after signing

	buf, err := Encode(a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, err = Load(buf, VerifyOptions{PublicKey: []byte(pub), RequireSignature: true})
	assertCode(t, err, CodeSignatureInvalid)
}

func TestLoadRequiresSignatureWhenConfigured(t *testing.T) {
	a := sampleArtifact()
	buf, err := Encode(a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, err = Load(buf, VerifyOptions{RequireSignature: true})
	assertCode(t, err, CodeSignatureRequired)
}

func TestNormalizeKeyRejectsWrongLength(t *testing.T) {
	_, err := normalizeKey([]byte{1, 2, 3})
	assertCode(t, err, CodeInvalidKey)
}

func assertCode(t *testing.T, err error, want Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", want)
	}
	var aerr *Error
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *artifact.Error, got %T: %v", err, err)
	}
	if aerr.Code != want {
		t.Fatalf("error code = %s, want %s", aerr.Code, want)
	}
}
