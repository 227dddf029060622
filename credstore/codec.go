package credstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"
)

const (
	formatVersionCurrent = 2
	formatVersionV1      = 1
)

var (
	// ErrEmptyToken rejects credentials without a session token.
	ErrEmptyToken = errors.New("credentials require a session token")
	// ErrInvalidFormat is returned by Decode for unknown or truncated blobs.
	ErrInvalidFormat = errors.New("invalid credentials format")
)

// Encode serializes c in the current format:
//
//	version u8 | token u16+bytes | username u8+bytes | identity u8+bytes | expires i64 (unix ms, 0 = none)
//
// Version 1 blobs lack the identity field.
func Encode(c Credentials) ([]byte, error) {
	if c.SessionToken == "" {
		return nil, ErrEmptyToken
	}
	if len(c.SessionToken) > math.MaxUint16 {
		return nil, errors.New("session token too long")
	}
	if len(c.Username) > 255 {
		return nil, errors.New("username too long")
	}
	if len(c.IdentityID) > 255 {
		return nil, errors.New("identity id too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(formatVersionCurrent)

	if err := binary.Write(&buf, binary.BigEndian, uint16(len(c.SessionToken))); err != nil {
		return nil, err
	}
	buf.WriteString(c.SessionToken)

	buf.WriteByte(byte(len(c.Username)))
	buf.WriteString(c.Username)

	buf.WriteByte(byte(len(c.IdentityID)))
	buf.WriteString(c.IdentityID)

	var expires int64
	if !c.ExpiresAt.IsZero() {
		expires = c.ExpiresAt.UnixMilli()
	}
	if err := binary.Write(&buf, binary.BigEndian, expires); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob written by Encode in any supported version.
func Decode(data []byte) (Credentials, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return Credentials{}, ErrInvalidFormat
	}
	if version != formatVersionCurrent && version != formatVersionV1 {
		return Credentials{}, ErrInvalidFormat
	}

	var c Credentials

	var tokenLen uint16
	if err := binary.Read(reader, binary.BigEndian, &tokenLen); err != nil {
		return Credentials{}, ErrInvalidFormat
	}
	if c.SessionToken, err = readString(reader, int(tokenLen)); err != nil {
		return Credentials{}, err
	}

	userLen, err := reader.ReadByte()
	if err != nil {
		return Credentials{}, ErrInvalidFormat
	}
	if c.Username, err = readString(reader, int(userLen)); err != nil {
		return Credentials{}, err
	}

	if version == formatVersionCurrent {
		idLen, err := reader.ReadByte()
		if err != nil {
			return Credentials{}, ErrInvalidFormat
		}
		if c.IdentityID, err = readString(reader, int(idLen)); err != nil {
			return Credentials{}, err
		}
	}

	var expires int64
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return Credentials{}, ErrInvalidFormat
	}
	if expires != 0 {
		c.ExpiresAt = time.UnixMilli(expires)
	}

	if c.SessionToken == "" {
		return Credentials{}, ErrEmptyToken
	}
	return c, nil
}

func readString(r *bytes.Reader, n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", ErrInvalidFormat
	}
	return string(b), nil
}
