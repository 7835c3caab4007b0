package tokens

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

const snapshotVersion = 2

var errCorruptSnapshot = errors.New("corrupt token snapshot")

// CacheKey is the cache key of the snapshot for jti.
func CacheKey(jti string) string {
	return "token_" + jti
}

// EncodeSnapshot serializes the cached fields of a token record:
//
//	version u8 | len u16 jti | len u8 type | len u16 identity | revoked u8 | expires i64 (unix s)
//
// Integers are big-endian. The store id is not part of a snapshot, since
// snapshots are written before the row exists; decoded sessions have ID 0.
func EncodeSnapshot(s *models.Session) ([]byte, error) {
	if len(s.JTI) > math.MaxUint16 || len(s.UserIdentity) > math.MaxUint16 || len(s.TokenType) > math.MaxUint8 {
		return nil, errors.New("token snapshot field too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(snapshotVersion)

	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.JTI))); err != nil {
		return nil, err
	}
	buf.WriteString(s.JTI)

	buf.WriteByte(byte(len(s.TokenType)))
	buf.WriteString(string(s.TokenType))

	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.UserIdentity))); err != nil {
		return nil, err
	}
	buf.WriteString(s.UserIdentity)

	if s.Revoked {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt.Unix()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeSnapshot parses data produced by EncodeSnapshot. Any structural
// problem is reported as a corrupt snapshot.
func DecodeSnapshot(data []byte) (*models.Session, error) {
	s, err := decodeSnapshot(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptSnapshot, err)
	}
	return s, nil
}

func decodeSnapshot(r *bytes.Reader) (*models.Session, error) {
	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported version %d", version)
	}

	s := &models.Session{}
	if s.JTI, err = readString16(r); err != nil {
		return nil, err
	}

	typeLen, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	typ := make([]byte, typeLen)
	if _, err := io.ReadFull(r, typ); err != nil {
		return nil, err
	}
	s.TokenType = models.TokenType(typ)
	if !s.TokenType.Valid() {
		return nil, fmt.Errorf("unknown token type %q", typ)
	}

	if s.UserIdentity, err = readString16(r); err != nil {
		return nil, err
	}

	revoked, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch revoked {
	case 0:
	case 1:
		s.Revoked = true
	default:
		return nil, fmt.Errorf("bad revoked flag %d", revoked)
	}

	var expires int64
	if err := binary.Read(r, binary.BigEndian, &expires); err != nil {
		return nil, err
	}
	s.ExpiresAt = time.Unix(expires, 0).UTC()

	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return s, nil
}

func readString16(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
