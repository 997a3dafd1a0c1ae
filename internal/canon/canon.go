// Package canon implements deterministic JSON canonicalization and hashing
// for AgentOAuth policies.
//
// Policies are hashed, the hash is bound into the token payload
// (policy_hash) and into the WebAuthn intent challenge. Any non-deterministic
// field ordering in the serialized form would silently break verification
// across independently-implemented peers, so canonicalization rules are
// fixed here rather than left to encoding/json's map-iteration order.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"sort"
)

// Error is returned for values that cannot be canonicalized: NaN, Infinity,
// cycles, or anything encoding/json itself refuses.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "canon: " + e.Reason }

// Canonicalize serializes value into its deterministic byte form: object
// keys sorted lexicographically at every depth, arrays left in order,
// numbers rendered with no insignificant trailing zeros on integers, and no
// insignificant whitespace.
func Canonicalize(value interface{}) ([]byte, error) {
	// Round-trip through encoding/json with UseNumber so integers and
	// floats arriving as json.Number are preserved precisely instead of
	// being coerced to float64, which would lose precision for large
	// integers and reformat numbers non-deterministically.
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, &Error{Reason: err.Error()}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, &Error{Reason: err.Error()}
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		return writeNumber(buf, t)
	case string:
		writeString(buf, t)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return &Error{Reason: fmt.Sprintf("unrepresentable value of type %T", v)}
	}
	return nil
}

func writeNumber(buf *bytes.Buffer, n json.Number) error {
	s := n.String()
	if i, ok := new(big.Int).SetString(s, 10); ok {
		buf.WriteString(i.String())
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return &Error{Reason: "invalid number: " + s}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &Error{Reason: "NaN and Infinity are not representable"}
	}
	// Minimal JSON number representation: no trailing zeros, no '+' exponent
	// sign padding beyond what strconv already produces.
	rendered := big.NewFloat(f).Text('g', -1)
	buf.WriteString(rendered)
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// Hash returns "sha256:<lowercase-hex>" over the canonical serialization.
func Hash(value interface{}) (string, error) {
	b, err := Canonicalize(value)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// VerifyHash reports whether expected matches Hash(value).
func VerifyHash(value interface{}, expected string) (bool, error) {
	h, err := Hash(value)
	if err != nil {
		return false, err
	}
	return h == expected, nil
}
