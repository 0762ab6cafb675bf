package artifact

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// MaxArtifactBytes bounds the encoded artifact size.
	MaxArtifactBytes = 10 * 1024 * 1024
	// MaxStrings bounds the string table length.
	MaxStrings = 100_000
	// MaxStringLen bounds any single string-table entry.
	MaxStringLen = 10_000
	// MaxFlags bounds the number of flags.
	MaxFlags = 100_000
	// SignatureLen is the expected Ed25519 signature length.
	SignatureLen = ed25519.SignatureSize
	// PublicKeyLen is the expected Ed25519 public key length.
	PublicKeyLen = ed25519.PublicKeySize
)

// wireArtifact mirrors the MessagePack map keys. Fields decode
// into loosely-typed slices because rules and expressions are tagged tuples,
// not fixed-shape records; decodeRule/decodeExpr interpret them by hand the
// same way quarry/ipc.probeFrameType manually walks a msgpack map.
type wireArtifact struct {
	V         string   `msgpack:"v"`
	Env       string   `msgpack:"env"`
	Strs      []string `msgpack:"strs"`
	Flags     [][]any  `msgpack:"flags"`
	FlagNames []uint16 `msgpack:"flagNames"`
	Segments  [][]any  `msgpack:"segments,omitempty"`
	Sig       []byte   `msgpack:"sig,omitempty"`
}

// wireArtifactNoSig is the canonical signing/verification view: every field
// of wireArtifact except Sig, in the same declared order, so re-encoding
// never reintroduces the signature bytes into the signed message.
type wireArtifactNoSig struct {
	V         string   `msgpack:"v"`
	Env       string   `msgpack:"env"`
	Strs      []string `msgpack:"strs"`
	Flags     [][]any  `msgpack:"flags"`
	FlagNames []uint16 `msgpack:"flagNames"`
	Segments  [][]any  `msgpack:"segments,omitempty"`
}

// Decode parses and validates a MessagePack-encoded artifact buffer,
// enforcing every gate in the documented order.
func Decode(buf []byte) (*Artifact, error) {
	if len(buf) > MaxArtifactBytes {
		return nil, newErr(CodeInvalidArtifact, "buffer length %d exceeds %d bytes", len(buf), MaxArtifactBytes)
	}

	if err := assertTopLevelMap(buf); err != nil {
		return nil, err
	}

	var wire wireArtifact
	if err := msgpack.Unmarshal(buf, &wire); err != nil {
		return nil, wrapErr(CodeInvalidArtifact, err, "decode")
	}

	if wire.V == "" {
		return nil, newErr(CodeInvalidArtifact, "missing required field \"v\"")
	}
	if wire.Env == "" {
		return nil, newErr(CodeInvalidArtifact, "missing required field \"env\"")
	}
	if len(wire.Strs) > MaxStrings {
		return nil, newErr(CodeInvalidArtifact, "string table length %d exceeds %d", len(wire.Strs), MaxStrings)
	}
	for i, s := range wire.Strs {
		if len(s) > MaxStringLen {
			return nil, newErr(CodeInvalidArtifact, "strs[%d] length %d exceeds %d characters", i, len(s), MaxStringLen)
		}
	}
	if len(wire.Flags) > MaxFlags {
		return nil, newErr(CodeInvalidArtifact, "flags length %d exceeds %d", len(wire.Flags), MaxFlags)
	}
	if len(wire.FlagNames) != len(wire.Flags) {
		return nil, newErr(CodeInvalidArtifact, "flagNames length %d does not match flags length %d", len(wire.FlagNames), len(wire.Flags))
	}
	for i, nameIdx := range wire.FlagNames {
		if int(nameIdx) >= len(wire.Strs) {
			return nil, newErr(CodeInvalidArtifact, "flagNames[%d]=%d out of range of strs (len %d)", i, nameIdx, len(wire.Strs))
		}
	}

	art := &Artifact{
		Version:     wire.V,
		Environment: wire.Env,
		Strings:     wire.Strs,
		FlagNames:   wire.FlagNames,
		Signature:   wire.Sig,
	}

	flags := make([][]Rule, len(wire.Flags))
	for i, ruleTuples := range wire.Flags {
		rules := make([]Rule, 0, len(ruleTuples))
		for j, rt := range ruleTuples {
			tuple, ok := rt.([]any)
			if !ok {
				return nil, newErr(CodeInvalidArtifact, "flags[%d][%d] is not a tuple", i, j)
			}
			rule, err := decodeRule(tuple, len(wire.Strs))
			if err != nil {
				return nil, newErr(CodeInvalidArtifact, "flags[%d][%d]: %v", i, j, err)
			}
			rules = append(rules, rule)
		}
		flags[i] = rules
	}
	art.Flags = flags

	segments := make([]Segment, 0, len(wire.Segments))
	for i, segTuple := range wire.Segments {
		if len(segTuple) != 2 {
			return nil, newErr(CodeInvalidArtifact, "segments[%d] must be a 2-element tuple", i)
		}
		nameIdx, err := toInt(segTuple[0])
		if err != nil {
			return nil, newErr(CodeInvalidArtifact, "segments[%d] name index: %v", i, err)
		}
		if nameIdx < 0 || nameIdx >= len(wire.Strs) {
			return nil, newErr(CodeInvalidArtifact, "segments[%d] name index %d out of range", i, nameIdx)
		}
		exprTuple, ok := segTuple[1].([]any)
		if !ok {
			return nil, newErr(CodeInvalidArtifact, "segments[%d] expression is not a tuple", i)
		}
		expr, err := decodeExpr(exprTuple, len(wire.Strs))
		if err != nil {
			return nil, newErr(CodeInvalidArtifact, "segments[%d]: %v", i, err)
		}
		segments = append(segments, Segment{NameIndex: nameIdx, Expr: expr})
	}
	art.Segments = segments

	if err := art.buildFlagIndex(); err != nil {
		return nil, newErr(CodeInvalidArtifact, "%v", err)
	}

	return art, nil
}

// assertTopLevelMap rejects any payload whose top-level value is not a map,
// "Decoding MUST reject any value whose top level is not a
// map."
func assertTopLevelMap(buf []byte) error {
	dec := msgpack.NewDecoder(bytes.NewReader(buf))
	if _, err := dec.DecodeMapLen(); err != nil {
		return wrapErr(CodeInvalidArtifact, err, "top-level value is not a map")
	}
	return nil
}

// VerifyOptions controls optional Ed25519 signature verification on Load.
type VerifyOptions struct {
	// PublicKey accepts raw 32-byte key material, a base64 string, or a hex
	// string key-normalization rules.
	PublicKey any
	// RequireSignature fails the load if no signature is present, even when
	// PublicKey is unset.
	RequireSignature bool
}

// Load decodes the artifact and, when verification is requested, checks its
// Ed25519 signature against the canonical unsigned encoding.
func Load(buf []byte, opts VerifyOptions) (*Artifact, error) {
	art, err := Decode(buf)
	if err != nil {
		return nil, err
	}

	hasSig := len(art.Signature) > 0
	if opts.RequireSignature && !hasSig {
		return nil, newErr(CodeSignatureRequired, "artifact has no signature but one is required")
	}

	if opts.PublicKey == nil {
		return art, nil
	}

	key, err := normalizeKey(opts.PublicKey)
	if err != nil {
		return nil, err
	}

	if !hasSig {
		if opts.RequireSignature {
			return nil, newErr(CodeSignatureRequired, "artifact has no signature but one is required")
		}
		return art, nil
	}

	if len(art.Signature) != SignatureLen {
		return nil, newErr(CodeSignatureInvalid, "signature length %d, want %d", len(art.Signature), SignatureLen)
	}

	message, err := canonicalMessage(buf)
	if err != nil {
		return nil, wrapErr(CodeInvalidArtifact, err, "rebuild canonical signing message")
	}

	if !ed25519.Verify(key, message, art.Signature) {
		return nil, newErr(CodeSignatureInvalid, "ed25519 verification failed")
	}

	return art, nil
}

// normalizeKey accepts raw bytes, base64, or hex key material and returns a
// 32-byte Ed25519 public key.
func normalizeKey(raw any) (ed25519.PublicKey, error) {
	switch v := raw.(type) {
	case []byte:
		if len(v) != PublicKeyLen {
			return nil, newErr(CodeInvalidKey, "raw key length %d, want %d", len(v), PublicKeyLen)
		}
		return ed25519.PublicKey(v), nil
	case ed25519.PublicKey:
		if len(v) != PublicKeyLen {
			return nil, newErr(CodeInvalidKey, "raw key length %d, want %d", len(v), PublicKeyLen)
		}
		return v, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil && len(decoded) == PublicKeyLen {
			return ed25519.PublicKey(decoded), nil
		}
		if decoded, err := hex.DecodeString(trimmed); err == nil && len(decoded) == PublicKeyLen {
			return ed25519.PublicKey(decoded), nil
		}
		return nil, newErr(CodeInvalidKey, "string key is neither valid base64 nor hex for a %d-byte key", PublicKeyLen)
	default:
		return nil, newErr(CodeInvalidKey, "unsupported key material type %T", raw)
	}
}

// canonicalMessage re-decodes buf and re-encodes it without the sig field,
// producing the exact message that was (or should have been) signed.
func canonicalMessage(buf []byte) ([]byte, error) {
	var wire wireArtifact
	if err := msgpack.Unmarshal(buf, &wire); err != nil {
		return nil, fmt.Errorf("decode for canonicalization: %w", err)
	}
	noSig := wireArtifactNoSig{
		V:         wire.V,
		Env:       wire.Env,
		Strs:      wire.Strs,
		Flags:     wire.Flags,
		FlagNames: wire.FlagNames,
		Segments:  wire.Segments,
	}
	out, err := msgpack.Marshal(&noSig)
	if err != nil {
		return nil, fmt.Errorf("encode canonical message: %w", err)
	}
	return out, nil
}

// Encode serializes an Artifact back to its MessagePack wire form. It is
// used by tests to build fixtures and by signing helpers; production
// callers only ever decode artifacts produced upstream.
func Encode(a *Artifact) ([]byte, error) {
	wire := wireArtifact{
		V:         a.Version,
		Env:       a.Environment,
		Strs:      a.Strings,
		FlagNames: a.FlagNames,
		Sig:       a.Signature,
	}
	wire.Flags = make([][]any, len(a.Flags))
	for i, rules := range a.Flags {
		tuples := make([]any, len(rules))
		for j, r := range rules {
			tuples[j] = encodeRule(r)
		}
		wire.Flags[i] = tuples
	}
	wire.Segments = make([][]any, len(a.Segments))
	for i, seg := range a.Segments {
		wire.Segments[i] = []any{seg.NameIndex, encodeExpr(seg.Expr)}
	}
	return msgpack.Marshal(&wire)
}

// SignWithKey computes the Ed25519 signature over the canonical unsigned
// encoding of a, for use by tests that need signed fixtures.
func SignWithKey(a *Artifact, priv ed25519.PrivateKey) ([]byte, error) {
	unsigned := *a
	unsigned.Signature = nil
	buf, err := Encode(&unsigned)
	if err != nil {
		return nil, err
	}
	message, err := canonicalMessage(buf)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, message), nil
}
