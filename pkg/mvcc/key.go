package mvcc

import (
	"github.com/bobboyms/kvsql/pkg/errors"
	"github.com/bobboyms/kvsql/pkg/keycode"
)

// Version identifica uma transação e cada versão física escrita por ela.
// Monotônica, nunca reutilizada.
type Version uint64

// As quatro famílias de chaves físicas que a camada MVCC mantém no mesmo
// keyspace que protege. O byte de tag vem primeiro, então cada família
// só intercala consigo mesma:
//
//	NextVersion            0x00
//	TxnActive(v)           0x01 | v u64 BE
//	TxnWrite(v, raw)       0x02 | v u64 BE | raw escapado+terminado
//	Version(raw, v)        0x03 | raw escapado+terminado | v u64 BE
//
// Version coloca a chave crua antes da versão: todas as versões de uma
// chave ficam adjacentes, ordenadas por versão, e a forma-prefixo
// Version(raw) é um prefixo byte-a-byte exato de toda Version(raw, v).
const (
	tagNextVersion byte = 0x00
	tagTxnActive   byte = 0x01
	tagTxnWrite    byte = 0x02
	tagVersion     byte = 0x03
)

func encodeNextVersion() []byte {
	return []byte{tagNextVersion}
}

func encodeTxnActive(v Version) []byte {
	return keycode.AppendUint64([]byte{tagTxnActive}, uint64(v))
}

func encodeTxnWrite(v Version, raw []byte) []byte {
	dst := keycode.AppendUint64([]byte{tagTxnWrite}, uint64(v))
	return keycode.AppendBytes(dst, raw)
}

func encodeVersionKey(raw []byte, v Version) []byte {
	dst := keycode.AppendBytes([]byte{tagVersion}, raw)
	return keycode.AppendUint64(dst, uint64(v))
}

// Formas-prefixo: prefixos byte-a-byte estritos das codificações completas.

func prefixTxnActive() []byte {
	return []byte{tagTxnActive}
}

func prefixTxnWrite(v Version) []byte {
	return keycode.AppendUint64([]byte{tagTxnWrite}, uint64(v))
}

// prefixVersionKey codifica Version(raw) com o terminador do campo.
// Para um prefix scan sobre chaves cruas que COMEÇAM com raw, o chamador
// remove os 2 bytes finais do terminador (ver Transaction.ScanPrefix).
func prefixVersionKey(raw []byte) []byte {
	return keycode.AppendBytes([]byte{tagVersion}, raw)
}

// decodedKey é o resultado de decodeKey: a variante e seus campos.
type decodedKey struct {
	tag     byte
	version Version
	raw     []byte
}

// decodeKey desfaz qualquer uma das quatro codificações.
func decodeKey(b []byte) (decodedKey, error) {
	if len(b) == 0 {
		return decodedKey{}, errors.Internalf("mvcc: empty key")
	}
	tag, rest := b[0], b[1:]

	switch tag {
	case tagNextVersion:
		if len(rest) != 0 {
			return decodedKey{}, errors.Internalf("mvcc: trailing bytes in NextVersion key")
		}
		return decodedKey{tag: tag}, nil

	case tagTxnActive:
		v, rest, err := keycode.DecodeUint64(rest)
		if err != nil {
			return decodedKey{}, err
		}
		if len(rest) != 0 {
			return decodedKey{}, errors.Internalf("mvcc: trailing bytes in TxnActive key")
		}
		return decodedKey{tag: tag, version: Version(v)}, nil

	case tagTxnWrite:
		v, rest, err := keycode.DecodeUint64(rest)
		if err != nil {
			return decodedKey{}, err
		}
		raw, rest, err := keycode.DecodeBytes(rest)
		if err != nil {
			return decodedKey{}, err
		}
		if len(rest) != 0 {
			return decodedKey{}, errors.Internalf("mvcc: trailing bytes in TxnWrite key")
		}
		return decodedKey{tag: tag, version: Version(v), raw: raw}, nil

	case tagVersion:
		raw, rest, err := keycode.DecodeBytes(rest)
		if err != nil {
			return decodedKey{}, err
		}
		v, rest, err := keycode.DecodeUint64(rest)
		if err != nil {
			return decodedKey{}, err
		}
		if len(rest) != 0 {
			return decodedKey{}, errors.Internalf("mvcc: trailing bytes in Version key")
		}
		return decodedKey{tag: tag, version: Version(v), raw: raw}, nil
	}

	return decodedKey{}, errors.Internalf("mvcc: unknown key tag 0x%02X", tag)
}
