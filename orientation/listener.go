package orientation

import (
	"context"
	"errors"
	"net"

	"github.com/sirupsen/logrus"
)

const maxDatagramSize = 1500

// Listener stores the angles of every rotation datagram it receives.
type Listener struct {
	Latest *Latest
	Logger logrus.FieldLogger

	conn net.PacketConn
}

// Listen opens a UDP socket, e.g. ":6969".
func Listen(address string, latest *Latest, logger logrus.FieldLogger) (*Listener, error) {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Listener{Latest: latest, Logger: logger, conn: conn}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Serve receives datagrams until ctx ends or the listener is closed.
// Malformed datagrams are logged and dropped.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()

	buffer := make([]byte, maxDatagramSize)
	for {
		n, from, err := l.conn.ReadFrom(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		packet, err := ParsePacket(buffer[:n])
		if err != nil {
			l.Logger.WithField("from", from.String()).WithError(err).Debug("dropping datagram")
			continue
		}

		angles := packet.Rotation.Angles()
		l.Latest.Set(angles)
		l.Logger.WithFields(logrus.Fields{
			"packet": packet.Number,
			"sensor": packet.SensorID,
			"angles": angles,
		}).Trace("orientation received")
	}
}

func (l *Listener) Close() error {
	return l.conn.Close()
}
