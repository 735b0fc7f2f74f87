// Package keycode fornece primitivas de codificação de chaves cuja
// comparação byte-lexicográfica preserva a ordem semântica dos campos.
//
// Regras:
//   - inteiros de largura fixa em big-endian, para que a ordem numérica
//     (sem sinal) coincida com a ordem dos bytes
//   - campos de bytes de tamanho variável são auto-delimitados: 0x00
//     internos viram 0x00 0xFF e o campo termina em 0x00 0x00, de modo
//     que nenhum conteúdo se confunda com o campo seguinte
//
// A codificação é simétrica: Decode(Encode(x)) == x.
package keycode

import (
	"encoding/binary"

	"github.com/bobboyms/kvsql/pkg/errors"
)

// AppendBytes codifica b com escape de 0x00 e terminador 0x00 0x00.
func AppendBytes(dst []byte, b []byte) []byte {
	for _, c := range b {
		if c == 0x00 {
			dst = append(dst, 0x00, 0xFF)
		} else {
			dst = append(dst, c)
		}
	}
	return append(dst, 0x00, 0x00)
}

// DecodeBytes desfaz AppendBytes, retornando o campo e o restante do buffer.
func DecodeBytes(buf []byte) (val []byte, rest []byte, err error) {
	val = []byte{}
	for i := 0; i < len(buf); i++ {
		c := buf[i]
		if c != 0x00 {
			val = append(val, c)
			continue
		}
		if i+1 >= len(buf) {
			return nil, nil, errors.Internalf("keycode: truncated byte field")
		}
		switch buf[i+1] {
		case 0x00:
			return val, buf[i+2:], nil
		case 0xFF:
			val = append(val, 0x00)
			i++
		default:
			return nil, nil, errors.Internalf("keycode: invalid escape 0x00 0x%02X", buf[i+1])
		}
	}
	return nil, nil, errors.Internalf("keycode: unterminated byte field")
}

// AppendUint64 codifica v em 8 bytes big-endian.
func AppendUint64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// DecodeUint64 desfaz AppendUint64.
func DecodeUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, errors.Internalf("keycode: truncated uint64")
	}
	return binary.BigEndian.Uint64(buf[:8]), buf[8:], nil
}

// AppendInt64 codifica v preservando a ordem para inteiros com sinal:
// o bit de sinal é invertido antes do big-endian, então negativos
// ordenam antes de positivos.
func AppendInt64(dst []byte, v int64) []byte {
	return AppendUint64(dst, uint64(v)^(1<<63))
}

// DecodeInt64 desfaz AppendInt64.
func DecodeInt64(buf []byte) (int64, []byte, error) {
	u, rest, err := DecodeUint64(buf)
	if err != nil {
		return 0, nil, err
	}
	return int64(u ^ (1 << 63)), rest, nil
}
