package credstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEncodeDecodeCurrentVersion(t *testing.T) {
	exp := time.UnixMilli(time.Now().Add(time.Hour).UnixMilli())
	in := Credentials{SessionToken: "ory_st_abc", Username: "alice", IdentityID: "id-1", ExpiresAt: exp}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if data[0] != formatVersionCurrent {
		t.Fatalf("expected version byte %d, got %d", formatVersionCurrent, data[0])
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.SessionToken != in.SessionToken || out.Username != in.Username || out.IdentityID != in.IdentityID || !out.ExpiresAt.Equal(exp) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestDecodeVersion1(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(formatVersionV1)
	_ = binary.Write(&buf, binary.BigEndian, uint16(3))
	buf.WriteString("tok")
	buf.WriteByte(3)
	buf.WriteString("bob")
	_ = binary.Write(&buf, binary.BigEndian, int64(0))

	c, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.SessionToken != "tok" || c.Username != "bob" || c.IdentityID != "" || !c.ExpiresAt.IsZero() {
		t.Fatalf("unexpected v1 credentials: %+v", c)
	}
}

func TestDecodeRejectsInvalidBlobs(t *testing.T) {
	valid, err := Encode(Credentials{SessionToken: "tok", Username: "u"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	cases := map[string][]byte{
		"empty":     nil,
		"version":   append([]byte{9}, valid[1:]...),
		"truncated": valid[:len(valid)-3],
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(blob); !errors.Is(err, ErrInvalidFormat) {
				t.Fatalf("expected ErrInvalidFormat, got %v", err)
			}
		})
	}
}

func TestEncodeRejectsOversizedFields(t *testing.T) {
	if _, err := Encode(Credentials{}); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
	if _, err := Encode(Credentials{SessionToken: "t", Username: strings.Repeat("u", 256)}); err == nil {
		t.Fatal("expected oversized username to fail")
	}
}

func FuzzDecode(f *testing.F) {
	seed, _ := Encode(Credentials{SessionToken: "tok", Username: "u", IdentityID: "i"})
	f.Add(seed)
	f.Add([]byte{})
	f.Add([]byte{formatVersionCurrent, 0xff, 0xff})

	f.Fuzz(func(t *testing.T, data []byte) {
		c, err := Decode(data)
		if err != nil {
			return
		}
		if c.SessionToken == "" {
			t.Fatal("Decode returned empty token without error")
		}
	})
}
