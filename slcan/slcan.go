// Package slcan reads and writes CAN frames through a serial-line CAN adapter
// speaking the Lawicel ASCII protocol.
package slcan

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/FabianPetersen/can"
	"go.bug.st/serial"
)

const (
	maskEff   = 0x80000000
	maskRtr   = 0x40000000
	maskIDSff = 0x000007FF
	maskIDEff = 0x1FFFFFFF
)

// Bitrate setup commands by bit rate.
var bitrates = map[int]string{
	10000:   "S0",
	20000:   "S1",
	50000:   "S2",
	100000:  "S3",
	125000:  "S4",
	250000:  "S5",
	500000:  "S6",
	800000:  "S7",
	1000000: "S8",
}

// frameSize is the length of a frame in the binary layout of can.Marshal.
const frameSize = 16

// ReadWriteCloser exchanges frames over a serial line. Read and Write carry one
// frame per call in the binary layout of can.Marshal, so that
// can.NewReadWriteCloser can put a can.Bus on top of it.
type ReadWriteCloser struct {
	port   io.ReadWriteCloser
	reader *bufio.Reader
	mu     sync.Mutex
}

// New wraps an opened serial port.
func New(port io.ReadWriteCloser) *ReadWriteCloser {
	return &ReadWriteCloser{
		port:   port,
		reader: bufio.NewReader(port),
	}
}

// Open opens a serial adapter and its CAN channel at bitrate.
func Open(portName string, baudRate int, bitrate int) (*ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %v", portName, err)
	}

	rwc := New(port)
	if err := rwc.Setup(bitrate); err != nil {
		port.Close()
		return nil, err
	}
	return rwc, nil
}

// Setup closes the channel, sets the bit rate and opens the channel again.
func (rwc *ReadWriteCloser) Setup(bitrate int) error {
	command, ok := bitrates[bitrate]
	if !ok {
		return fmt.Errorf("unsupported bitrate %d", bitrate)
	}

	for _, line := range []string{"C", command, "O"} {
		if err := rwc.writeLine([]byte(line)); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame blocks until the next frame line. Acknowledgements and error bells
// of the adapter are skipped.
func (rwc *ReadWriteCloser) ReadFrame(frm *can.Frame) error {
	for {
		line, err := rwc.reader.ReadBytes('\r')
		if err != nil {
			return err
		}
		line = line[:len(line)-1]

		if len(line) == 0 || !isFrameLine(line[0]) {
			continue
		}
		return UnmarshalFrame(line, frm)
	}
}

// WriteFrame writes one frame line and returns no earlier than min after it
// started.
func (rwc *ReadWriteCloser) WriteFrame(frm can.Frame, min time.Duration) error {
	start := time.Now()
	line, err := MarshalFrame(frm)
	if err != nil {
		return err
	}

	err = rwc.writeLine(line)
	if duration := time.Since(start); duration < min {
		time.Sleep(min - duration)
	}
	return err
}

// Read reads the next frame and stores its binary encoding in b.
func (rwc *ReadWriteCloser) Read(b []byte) (int, error) {
	if len(b) < frameSize {
		return 0, io.ErrShortBuffer
	}

	var frm can.Frame
	if err := rwc.ReadFrame(&frm); err != nil {
		return 0, err
	}
	encoded, err := can.Marshal(frm)
	if err != nil {
		return 0, err
	}
	return copy(b, encoded), nil
}

// Write sends the frame encoded in b.
func (rwc *ReadWriteCloser) Write(b []byte) (int, error) {
	var frm can.Frame
	if err := can.Unmarshal(b, &frm); err != nil {
		return 0, fmt.Errorf("frame encoding: %w", err)
	}
	if err := rwc.WriteFrame(frm, 0); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close closes the CAN channel and the serial port.
func (rwc *ReadWriteCloser) Close() error {
	_ = rwc.writeLine([]byte("C"))
	return rwc.port.Close()
}

func (rwc *ReadWriteCloser) writeLine(line []byte) error {
	rwc.mu.Lock()
	defer rwc.mu.Unlock()
	_, err := rwc.port.Write(append(line, '\r'))
	return err
}

func isFrameLine(c byte) bool {
	return c == 't' || c == 'T' || c == 'r' || c == 'R'
}

// MarshalFrame returns the line of a frame without the trailing CR.
func MarshalFrame(frm can.Frame) ([]byte, error) {
	if frm.Length > 8 {
		return nil, fmt.Errorf("frame length %d exceeds 8", frm.Length)
	}

	extended := frm.ID&maskEff != 0
	rtr := frm.ID&maskRtr != 0

	var kind byte
	var id string
	if extended {
		kind = 'T'
		id = fmt.Sprintf("%08X", frm.ID&maskIDEff)
	} else {
		kind = 't'
		id = fmt.Sprintf("%03X", frm.ID&maskIDSff)
	}
	if rtr {
		kind -= 't' - 'r'
	}

	line := append([]byte{kind}, id...)
	line = append(line, '0'+frm.Length)
	if !rtr {
		line = append(line, fmt.Sprintf("%X", frm.Data[:frm.Length])...)
	}
	return line, nil
}

// UnmarshalFrame parses a frame line without the trailing CR. Characters after
// the data, such as an adapter timestamp, are ignored.
func UnmarshalFrame(line []byte, frm *can.Frame) error {
	if len(line) == 0 {
		return fmt.Errorf("empty line")
	}

	var idLength int
	var flags uint32
	switch line[0] {
	case 't':
		idLength = 3
	case 'r':
		idLength, flags = 3, maskRtr
	case 'T':
		idLength, flags = 8, maskEff
	case 'R':
		idLength, flags = 8, maskEff|maskRtr
	default:
		return fmt.Errorf("not a frame line: %q", line)
	}

	if len(line) < 1+idLength+1 {
		return fmt.Errorf("short frame line: %q", line)
	}

	id, err := strconv.ParseUint(string(line[1:1+idLength]), 16, 32)
	if err != nil {
		return fmt.Errorf("frame id in %q: %w", line, err)
	}
	if flags&maskEff == 0 && id > maskIDSff || id > maskIDEff {
		return fmt.Errorf("frame id in %q out of range", line)
	}

	length := line[1+idLength] - '0'
	if length > 8 {
		return fmt.Errorf("frame length in %q: %c", line, line[1+idLength])
	}

	*frm = can.Frame{ID: uint32(id) | flags, Length: length}
	if flags&maskRtr != 0 {
		return nil
	}

	data := line[2+idLength:]
	if len(data) < int(length)*2 {
		return fmt.Errorf("short frame data: %q", line)
	}
	for i := 0; i < int(length); i++ {
		b, err := strconv.ParseUint(string(data[2*i:2*i+2]), 16, 8)
		if err != nil {
			return fmt.Errorf("frame data in %q: %w", line, err)
		}
		frm.Data[i] = uint8(b)
	}
	return nil
}
