package mvcc

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bobboyms/kvsql/pkg/keycode"
)

// versionedValue é o payload físico gravado em Version(raw, v):
// um Option<bytes> serializado. Tombstone=true significa que a transação
// deletou a chave logicamente naquela versão.
type versionedValue struct {
	Tombstone bool   `bson:"tombstone"`
	Data      []byte `bson:"data"`
}

func encodeValue(data []byte, tombstone bool) ([]byte, error) {
	if data == nil {
		data = []byte{}
	}
	raw, err := bson.Marshal(versionedValue{Tombstone: tombstone, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encoding versioned value: %w", err)
	}
	return raw, nil
}

func decodeValue(raw []byte) (data []byte, tombstone bool, err error) {
	var vv versionedValue
	if err := bson.Unmarshal(raw, &vv); err != nil {
		return nil, false, fmt.Errorf("decoding versioned value: %w", err)
	}
	return vv.Data, vv.Tombstone, nil
}

// O contador NextVersion é um u64 big-endian cru.

func encodeVersion(v Version) []byte {
	return keycode.AppendUint64(nil, uint64(v))
}

func decodeVersion(raw []byte) (Version, error) {
	v, _, err := keycode.DecodeUint64(raw)
	return Version(v), err
}
