package signal

import (
	"encoding/binary"
	"math"

	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/ieee754"
)

func mask(length uint) uint64 {
	if length >= 64 {
		return math.MaxUint64
	}
	return 1<<length - 1
}

func extract(buf *[8]byte, sig *Spec) uint64 {
	pos, length := sig.bitRange()
	if sig.ByteOrder == BigEndian {
		word := binary.BigEndian.Uint64(buf[:])
		return (word >> (64 - pos - length)) & mask(length)
	}

	word := binary.LittleEndian.Uint64(buf[:])
	return (word >> pos) & mask(length)
}

func insert(buf *[8]byte, sig *Spec, raw uint64) {
	pos, length := sig.bitRange()
	m := mask(length)
	if sig.ByteOrder == BigEndian {
		shift := 64 - pos - length
		word := binary.BigEndian.Uint64(buf[:])
		word = word&^(m<<shift) | (raw&m)<<shift
		binary.BigEndian.PutUint64(buf[:], word)
		return
	}

	word := binary.LittleEndian.Uint64(buf[:])
	word = word&^(m<<pos) | (raw&m)<<pos
	binary.LittleEndian.PutUint64(buf[:], word)
}

func signExtend(raw uint64, length uint) int64 {
	if length >= 64 {
		return int64(raw)
	}
	shift := 64 - length
	return int64(raw<<shift) >> shift
}

// DecodeRaw reads every signal of msg from payload without any conversion.
func DecodeRaw(msg *MessageSpec, payload []byte) (Raw, error) {
	if uint(len(payload)) < msg.Length {
		return nil, DecodeError{
			Message: msg.Name,
			Reason:  "payload too short",
		}
	}

	var buf [8]byte
	copy(buf[:], payload)

	raw := make(Raw, len(msg.Signals))
	for i := range msg.Signals {
		raw[msg.Signals[i].Name] = extract(&buf, &msg.Signals[i])
	}
	return raw, nil
}

// Decode reads every signal of msg from payload.
//
// 1-bit signals decode to bool regardless of their declared sign. Enumerated
// signals decode to their label; a raw value without a label is a DecodeError.
func Decode(msg *MessageSpec, payload []byte) (Record, error) {
	raw, err := DecodeRaw(msg, payload)
	if err != nil {
		return nil, err
	}

	record := make(Record, len(msg.Signals))
	for _, sig := range msg.Signals {
		value := raw[sig.Name]
		switch {
		case sig.Length == 1:
			record[sig.Name] = value == 1

		case sig.Enum != nil:
			label, ok := sig.Enum.Label(value)
			if !ok {
				return nil, DecodeError{
					Message: msg.Name,
					Signal:  sig.Name,
					Raw:     value,
					Reason:  "no enum label for value",
				}
			}
			record[sig.Name] = label

		case sig.Kind == Float:
			record[sig.Name] = ieee754.Decode(uint32(value))

		case sig.Signed:
			record[sig.Name] = signExtend(value, sig.Length)

		default:
			record[sig.Name] = value
		}
	}

	return record, nil
}

// Encode writes record into a payload of msg.Length bytes.
// Signals missing from record are written as zero.
func Encode(msg *MessageSpec, record Record) ([]byte, error) {
	var buf [8]byte
	for i := range msg.Signals {
		sig := &msg.Signals[i]
		value, ok := record[sig.Name]
		if !ok {
			continue
		}

		raw, err := toRaw(sig, value)
		if err != nil {
			if encodeErr, ok := err.(EncodeError); ok {
				encodeErr.Message = msg.Name
				return nil, encodeErr
			}
			return nil, err
		}
		insert(&buf, sig, raw)
	}

	payload := make([]byte, msg.Length)
	copy(payload, buf[:msg.Length])
	return payload, nil
}

func toRaw(sig *Spec, value interface{}) (uint64, error) {
	fail := func(reason string) error {
		return EncodeError{Signal: sig.Name, Value: value, Reason: reason}
	}

	if b, ok := value.(bool); ok {
		if sig.Length != 1 {
			return 0, fail("boolean value for a multi-bit signal")
		}
		if b {
			return 1, nil
		}
		return 0, nil
	}

	if label, ok := value.(string); ok {
		if sig.Enum == nil {
			return 0, fail("label for a signal without enumeration")
		}
		raw, ok := sig.Enum.Value(label)
		if !ok {
			return 0, fail("unknown enum label")
		}
		if raw > mask(sig.Length) {
			return 0, fail("enum value exceeds signal width")
		}
		return raw, nil
	}

	if sig.Kind == Float {
		f, ok := toFloat64(value)
		if !ok {
			return 0, fail("not a number")
		}
		return uint64(ieee754.Encode(f)), nil
	}

	if sig.Signed && sig.Length > 1 {
		i, ok := toInt64(value)
		if !ok {
			return 0, fail("not an integer")
		}
		if sig.Length < 64 {
			limit := int64(1) << (sig.Length - 1)
			if i < -limit || i >= limit {
				return 0, fail("value exceeds signed signal width")
			}
		}
		return uint64(i) & mask(sig.Length), nil
	}

	u, ok := toUint64(value)
	if !ok {
		return 0, fail("not an unsigned integer")
	}
	if u > mask(sig.Length) {
		return 0, fail("value exceeds signal width")
	}
	return u, nil
}
