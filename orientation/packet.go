// Package orientation receives the orientation of a tracker over UDP and turns it
// into one bounded target angle per gimbal axis.
package orientation

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/ieee754"
)

const (
	PacketTypeRotation uint32 = 17
	PacketSize                = 4 + 8 + 1 + 1 + 4*4 + 1
)

// Quaternion is a rotation with x, y, z as the vector part.
type Quaternion struct {
	X, Y, Z, W float64
}

// Normalize returns the unit quaternion of q. The zero quaternion becomes the
// identity.
func (q Quaternion) Normalize() Quaternion {
	norm := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return Quaternion{W: 1}
	}
	return Quaternion{X: q.X / norm, Y: q.Y / norm, Z: q.Z / norm, W: q.W / norm}
}

// Euler returns roll, pitch and yaw in radians (intrinsic Z-Y-X order) of a
// unit quaternion.
func (q Quaternion) Euler() (roll, pitch, yaw float64) {
	roll = math.Atan2(2*(q.W*q.X+q.Y*q.Z), 1-2*(q.X*q.X+q.Y*q.Y))

	sinPitch := 2 * (q.W*q.Y - q.Z*q.X)
	pitch = math.Asin(math.Max(-1, math.Min(1, sinPitch)))

	yaw = math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
	return roll, pitch, yaw
}

// Angles returns roll, pitch and yaw of q, each wrapped into [0, 2π).
func (q Quaternion) Angles() []float64 {
	roll, pitch, yaw := q.Normalize().Euler()
	return []float64{WrapAngle(roll), WrapAngle(pitch), WrapAngle(yaw)}
}

// WrapAngle maps an angle in radians into [0, 2π).
func WrapAngle(angle float64) float64 {
	wrapped := math.Mod(angle, 2*math.Pi)
	if wrapped < 0 {
		wrapped += 2 * math.Pi
	}
	if wrapped >= 2*math.Pi {
		wrapped = 0
	}
	return wrapped
}

// Packet is a rotation datagram of a tracker.
type Packet struct {
	Type     uint32
	Number   uint64
	SensorID uint8
	DataType uint8
	Rotation Quaternion
	Accuracy uint8
}

// ParsePacket decodes a rotation datagram. All fields are big endian.
func ParsePacket(data []byte) (Packet, error) {
	if len(data) < PacketSize {
		return Packet{}, fmt.Errorf("short orientation packet: %d bytes, want %d", len(data), PacketSize)
	}

	packet := Packet{
		Type:     binary.BigEndian.Uint32(data[0:4]),
		Number:   binary.BigEndian.Uint64(data[4:12]),
		SensorID: data[12],
		DataType: data[13],
		Rotation: Quaternion{
			X: ieee754.Decode(binary.BigEndian.Uint32(data[14:18])),
			Y: ieee754.Decode(binary.BigEndian.Uint32(data[18:22])),
			Z: ieee754.Decode(binary.BigEndian.Uint32(data[22:26])),
			W: ieee754.Decode(binary.BigEndian.Uint32(data[26:30])),
		},
		Accuracy: data[30],
	}
	if packet.Type != PacketTypeRotation {
		return packet, fmt.Errorf("unexpected orientation packet type %d", packet.Type)
	}
	return packet, nil
}

// Marshal encodes the packet in the datagram layout read by ParsePacket.
func (p Packet) Marshal() []byte {
	data := make([]byte, PacketSize)
	binary.BigEndian.PutUint32(data[0:4], p.Type)
	binary.BigEndian.PutUint64(data[4:12], p.Number)
	data[12] = p.SensorID
	data[13] = p.DataType
	binary.BigEndian.PutUint32(data[14:18], ieee754.Encode(p.Rotation.X))
	binary.BigEndian.PutUint32(data[18:22], ieee754.Encode(p.Rotation.Y))
	binary.BigEndian.PutUint32(data[22:26], ieee754.Encode(p.Rotation.Z))
	binary.BigEndian.PutUint32(data[26:30], ieee754.Encode(p.Rotation.W))
	data[30] = p.Accuracy
	return data
}
