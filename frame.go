package odrive

import (
	"fmt"

	"github.com/FabianPetersen/can"
)

// A Frame represents a controller frame.
type Frame struct {
	// ID is the 11-bit (or 29-bit when Extended) identifier.
	// Bits 0-4 hold the command slot, bits 5-10 the node id.
	ID       uint32
	Extended bool
	// Rtr represents the Remote Transmit Request flag.
	Rtr bool
	// Data contains up to 8 bytes
	Data []uint8
}

// ODriveFrame returns a controller frame from a CAN frame.
func ODriveFrame(frm can.Frame) Frame {
	frame := Frame{}

	frame.Extended = (frm.ID & MaskEff) == MaskEff
	frame.Rtr = (frm.ID & MaskRtr) == MaskRtr
	if frame.Extended {
		frame.ID = frm.ID & MaskIDEff
	} else {
		frame.ID = frm.ID & MaskIDSff
	}

	n := int(frm.Length)
	if n > len(frm.Data) {
		n = len(frm.Data)
	}
	frame.Data = make([]uint8, n)
	copy(frame.Data, frm.Data[:n])

	return frame
}

// NewFrame returns a standard frame with an id and data bytes.
func NewFrame(id uint32, data []uint8) Frame {
	return Frame{
		ID:   id & MaskIDSff, // only use first 11 bits
		Data: data,
	}
}

// NodeID returns the node id.
func (frm Frame) NodeID() uint8 {
	node, _ := DecomposeID(frm.ID)
	return node
}

// Slot returns the command slot (command id plus axis offset).
func (frm Frame) Slot() uint8 {
	_, slot := DecomposeID(frm.ID)
	return slot
}

// Validate checks the identifier width and payload length.
func (frm Frame) Validate() error {
	if len(frm.Data) > 8 {
		return fmt.Errorf("frame 0x%X: %d data bytes exceed 8", frm.ID, len(frm.Data))
	}
	if frm.Extended && frm.ID > MaskIDEff {
		return fmt.Errorf("frame 0x%X: identifier exceeds 29 bits", frm.ID)
	}
	if !frm.Extended && frm.ID > MaskIDSff {
		return fmt.Errorf("frame 0x%X: identifier exceeds 11 bits", frm.ID)
	}
	return nil
}

func (frm Frame) String() string {
	return fmt.Sprintf("%03X [%d] % X", frm.ID, len(frm.Data), frm.Data)
}

// CANFrame returns a CAN frame representing the controller frame.
//
// Frames are encoded as follows:
//
//	        -------------------------------------------------------
//	CAN    | ID           | Length    | Flags | Res0 | Res1 | Data |
//	        -------------------------------------------------------
//	ODrive | ID+Rtr+Eff   | len(Data) |       |      |      | Data |
//	        -------------------------------------------------------
func (frm Frame) CANFrame() can.Frame {
	var data [8]uint8
	n := len(frm.Data)
	if n > len(data) {
		n = len(data)
	}
	copy(data[:n], frm.Data[:n])

	id := frm.ID
	if frm.Extended {
		id = (id & MaskIDEff) | MaskEff
	} else {
		id = id & MaskIDSff
	}
	if frm.Rtr {
		id = id | MaskRtr
	}

	return can.Frame{
		ID:     id,
		Length: uint8(n),
		Data:   data,
	}
}
