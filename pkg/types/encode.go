package types

import (
	"fmt"
	"math"

	"github.com/bobboyms/kvsql/pkg/keycode"
)

// Tags de tipo para chaves codificadas. A tag vem primeiro, então chaves
// de tipos diferentes não se intercalam.
const (
	keyTagBool    byte = 0x01
	keyTagInt     byte = 0x02
	keyTagFloat   byte = 0x03
	keyTagVarchar byte = 0x04
)

// EncodeKey codifica uma chave tipada preservando a ordem na forma de
// bytes: comparação byte-lexicográfica das formas codificadas equivale a
// Compare das chaves (para chaves do mesmo tipo).
func EncodeKey(dst []byte, k Comparable) ([]byte, error) {
	switch key := k.(type) {
	case BoolKey:
		dst = append(dst, keyTagBool)
		if key {
			return append(dst, 0x01), nil
		}
		return append(dst, 0x00), nil

	case IntKey:
		dst = append(dst, keyTagInt)
		return keycode.AppendInt64(dst, int64(key)), nil

	case FloatKey:
		// Flip do bit de sinal (positivos) ou de todos os bits (negativos)
		// faz a ordem IEEE-754 coincidir com a ordem dos bytes
		bits := math.Float64bits(float64(key))
		if key >= 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		dst = append(dst, keyTagFloat)
		return keycode.AppendUint64(dst, bits), nil

	case VarcharKey:
		dst = append(dst, keyTagVarchar)
		return keycode.AppendBytes(dst, []byte(key)), nil
	}
	return nil, fmt.Errorf("unsupported key type: %T", k)
}

// DecodeKey desfaz EncodeKey.
func DecodeKey(buf []byte) (Comparable, []byte, error) {
	if len(buf) == 0 {
		return nil, nil, fmt.Errorf("empty encoded key")
	}
	tag, rest := buf[0], buf[1:]

	switch tag {
	case keyTagBool:
		if len(rest) < 1 {
			return nil, nil, fmt.Errorf("truncated bool key")
		}
		return BoolKey(rest[0] == 0x01), rest[1:], nil

	case keyTagInt:
		v, rest, err := keycode.DecodeInt64(rest)
		if err != nil {
			return nil, nil, err
		}
		return IntKey(v), rest, nil

	case keyTagFloat:
		bits, rest, err := keycode.DecodeUint64(rest)
		if err != nil {
			return nil, nil, err
		}
		if bits&(1<<63) != 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		return FloatKey(math.Float64frombits(bits)), rest, nil

	case keyTagVarchar:
		b, rest, err := keycode.DecodeBytes(rest)
		if err != nil {
			return nil, nil, err
		}
		return VarcharKey(b), rest, nil
	}
	return nil, nil, fmt.Errorf("unknown key tag 0x%02X", tag)
}
