package algorand

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/abi"

	"genmark/internal/domain"
)

// Box namespaces on the contract. Registry boxes hold one encoded content
// record per fingerprint; flag boxes hold one description per (fingerprint,
// index) pair.
const (
	registryBoxPrefix = "reg_"
	flagBoxPrefix     = "flg_"
)

// contentRecordType is the ABI tuple stored in a registry box:
// (creator, contributor, platform, created_at, ownership_token, misuse_count,
// parent_fingerprint). The parent field is the empty string for originals.
const contentRecordType = "(string,string,string,uint64,uint64,uint64,string)"

var recordCodec = mustType(contentRecordType)

func mustType(s string) abi.Type {
	t, err := abi.TypeOf(s)
	if err != nil {
		panic(fmt.Sprintf("abi type %q: %v", s, err))
	}
	return t
}

// arc4String prefixes the UTF-8 bytes with a 2-byte big-endian length, the
// encoding the contract's box keys use for string map keys.
func arc4String(s string) []byte {
	b := []byte(s)
	out := make([]byte, 2+len(b))
	binary.BigEndian.PutUint16(out, uint16(len(b)))
	copy(out[2:], b)
	return out
}

// registryBoxKey is "reg_" + arc4(fingerprint).
func registryBoxKey(fp domain.Fingerprint) []byte {
	return append([]byte(registryBoxPrefix), arc4String(fp.String())...)
}

// flagBoxKey is "flg_" + arc4(fingerprint) + 8-byte big-endian index.
func flagBoxKey(fp domain.Fingerprint, index uint64) []byte {
	key := append([]byte(flagBoxPrefix), arc4String(fp.String())...)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	return append(key, idx[:]...)
}

func decodeContentRecord(fp domain.Fingerprint, data []byte) (domain.ContentRecord, error) {
	raw, err := recordCodec.Decode(data)
	if err != nil {
		return domain.ContentRecord{}, fmt.Errorf("decode content record: %w", err)
	}
	fields, ok := raw.([]interface{})
	if !ok || len(fields) != 7 {
		return domain.ContentRecord{}, fmt.Errorf("decode content record: unexpected shape %T", raw)
	}

	creator, err := abiString(fields[0])
	if err != nil {
		return domain.ContentRecord{}, err
	}
	contributor, err := abiString(fields[1])
	if err != nil {
		return domain.ContentRecord{}, err
	}
	platform, err := abiString(fields[2])
	if err != nil {
		return domain.ContentRecord{}, err
	}
	createdAt, err := abiUint64(fields[3])
	if err != nil {
		return domain.ContentRecord{}, err
	}
	token, err := abiUint64(fields[4])
	if err != nil {
		return domain.ContentRecord{}, err
	}
	misuse, err := abiUint64(fields[5])
	if err != nil {
		return domain.ContentRecord{}, err
	}
	parentHex, err := abiString(fields[6])
	if err != nil {
		return domain.ContentRecord{}, err
	}

	rec := domain.ContentRecord{
		Fingerprint:    fp,
		CreatorID:      creator,
		ContributorID:  contributor,
		Platform:       platform,
		CreatedAt:      time.Unix(int64(createdAt), 0).UTC(),
		OwnershipToken: token,
		MisuseCount:    misuse,
	}
	if parentHex != "" {
		parent, err := domain.ParseFingerprint(parentHex)
		if err != nil {
			return domain.ContentRecord{}, fmt.Errorf("decode parent fingerprint: %w", err)
		}
		rec.Parent = &parent
	}
	return rec, nil
}

// decodeFlagValue strips the arc4 string header from a flag box value.
func decodeFlagValue(data []byte) (string, error) {
	if len(data) < 2 {
		return "", fmt.Errorf("flag box too short: %d bytes", len(data))
	}
	n := int(binary.BigEndian.Uint16(data))
	if len(data) < 2+n {
		return "", fmt.Errorf("flag box truncated: header %d, body %d", n, len(data)-2)
	}
	return string(data[2 : 2+n]), nil
}

func abiString(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string field, got %T", v)
	}
	return s, nil
}

func abiUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case *big.Int:
		if !n.IsUint64() {
			return 0, fmt.Errorf("uint64 field out of range: %s", n)
		}
		return n.Uint64(), nil
	default:
		return 0, fmt.Errorf("expected uint64 field, got %T", v)
	}
}
