package adv

import (
	"github.com/pkg/errors"

	ble "github.com/antonvh/btbricks"
)

// Assigned field tags, per the generic access profile assigned numbers.
const (
	flags            byte = 0x01
	someUUID16       byte = 0x02
	allUUID16        byte = 0x03
	someUUID128      byte = 0x06
	allUUID128       byte = 0x07
	shortName        byte = 0x08
	completeName     byte = 0x09
	txPower          byte = 0x0a
	manufacturerData byte = 0xff
)

var keys = struct {
	flags   string
	uuid16  string
	uuid128 string
	name    string
	txpwr   string
	mfgdata string
}{
	flags:   "flags",
	uuid16:  "uuid16",
	uuid128: "uuid128",
	name:    "name",
	txpwr:   "txpwr",
	mfgdata: "mfg",
}

type fieldRecord struct {
	uuidElementSz int // >0: payload is a packed UUID array
	minSz         int
	key           string
}

var fieldDecodeMap = map[byte]fieldRecord{
	someUUID16:       {2, 2, keys.uuid16},
	allUUID16:        {2, 2, keys.uuid16},
	someUUID128:      {16, 16, keys.uuid128},
	allUUID128:       {16, 16, keys.uuid128},
	shortName:        {0, 1, keys.name},
	completeName:     {0, 1, keys.name},
	txPower:          {0, 1, keys.txpwr},
	manufacturerData: {0, 1, keys.mfgdata},
	flags:            {0, 1, keys.flags},
}

var logger = ble.GetLogger()

func uuidArray(size int, b []byte) ([]ble.UUID, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errors.Errorf("uuid list length %d not a multiple of %d", len(b), size)
	}

	arr := make([]ble.UUID, 0, len(b)/size)
	for j := 0; j < len(b); j += size {
		u := make(ble.UUID, size)
		copy(u, b[j:j+size])
		arr = append(arr, u)
	}
	return arr, nil
}

// decode walks the length-tagged records of a payload. Unknown tags are
// logged and skipped; a repeated tag replaces the earlier value.
func decode(pdu []byte) (map[string]interface{}, error) {
	if pdu == nil {
		return nil, errors.New("nil pdu")
	}

	m := make(map[string]interface{})
	for i := 0; (i + 1) < len(pdu); {
		// length @ offset 0, tag @ offset 1, data to length-1
		length := int(pdu[i])
		typ := pdu[i+1]

		// length counts the tag byte
		if length < 1 {
			return nil, errors.Errorf("invalid record length %d", length)
		}
		if (i + length) >= len(pdu) {
			return nil, errors.Errorf("record overflows payload: want %v, have %v", i+length, len(pdu))
		}

		start := i + 2
		end := start + length - 1
		b := pdu[start:end]

		dec, ok := fieldDecodeMap[typ]
		if !ok {
			logger.Debug("adv", "ignored unsupported field tag", typ)
			i += length + 1
			continue
		}

		// Some stacks pad with empty records; skip them.
		if len(b) == 0 {
			i += length + 1
			continue
		}

		if dec.minSz > len(b) {
			return nil, errors.Errorf("field tag %v: min length %v, have %v", typ, dec.minSz, len(b))
		}

		if dec.uuidElementSz > 0 {
			arr, err := uuidArray(dec.uuidElementSz, b)
			if err != nil {
				return nil, errors.Wrapf(err, "field tag %v", typ)
			}
			m[dec.key] = arr
		} else {
			bb := make([]byte, len(b))
			copy(bb, b)
			m[dec.key] = bb
		}

		i += length + 1
	}

	return m, nil
}
