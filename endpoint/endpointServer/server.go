package endpointServer

import (
	"sync"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/signal"
	"github.com/sirupsen/logrus"
)

// Server answers endpoint requests addressed to one axis, the way a controller
// does: READ is answered with a reply frame, WRITE is applied silently.
// Requests for ids missing from the catalog, or refused by Read, get no reply.
type Server struct {
	client       *odrive.Client
	messageQueue chan odrive.Frame
	done         chan struct{}
	unsubscribe  func()
	closeOnce    sync.Once

	Address odrive.Address
	Catalog *endpoint.Catalog
	Read    func(endpoint.Key) (endpoint.Value, bool)
	Write   func(endpoint.Key, endpoint.Value)
	Logger  logrus.FieldLogger
}

// Listen subscribes to the requests of the server address and processes them
// in arrival order until Close is called.
func (server *Server) Listen(client *odrive.Client) {
	// Initial Setup
	server.client = client
	server.messageQueue = make(chan odrive.Frame, 500)
	server.done = make(chan struct{})
	if server.Logger == nil {
		server.Logger = logrus.StandardLogger()
	}

	server.setupListener()

	// Process requests away from the receive path
	go server.processMessageQueue()
}

// Close stops the server. Queued requests are dropped.
func (server *Server) Close() {
	server.closeOnce.Do(func() {
		if server.unsubscribe != nil {
			server.unsubscribe()
		}
		close(server.done)
	})
}

func (server *Server) setupListener() {
	catalog := server.client.Catalog
	server.unsubscribe = server.client.Bus.Subscribe(func(frame odrive.Frame) {
		// Check if the frame is an endpoint request for us
		if frame.Rtr || frame.Extended || len(frame.Data) != 8 {
			return
		}
		if !server.Address.Matches(frame.ID, odrive.CmdRxSdo, catalog) {
			return
		}

		select {
		case server.messageQueue <- frame:
		case <-server.done:
		default:
			server.Logger.WithField("frame", frame.String()).Warn("endpoint request queue full, dropping request")
		}
	})
}

func (server *Server) processMessageQueue() {
	msg, _ := server.client.Catalog.Message(odrive.CmdRxSdo)
	for {
		select {
		case <-server.done:
			return
		case frame := <-server.messageQueue:
			server.handle(msg, frame)
		}
	}
}

func (server *Server) handle(msg *signal.MessageSpec, frame odrive.Frame) {
	record, err := signal.Decode(msg, frame.Data)
	if err != nil {
		server.Logger.WithError(err).Warn("invalid endpoint request")
		return
	}

	id := uint16(record.Uint(odrive.SignalEndpointID))
	key, ok := server.Catalog.ByID(id)
	if !ok {
		server.Logger.WithField("endpoint", id).Debug("request for unknown endpoint")
		return
	}

	word := uint32(record.Uint(odrive.SignalValue))
	switch record.Label(odrive.SignalOpcode) {
	case endpoint.OpcodeRead:
		server.handleRead(key)
	case endpoint.OpcodeWrite:
		server.handleWrite(key, endpoint.FromWord(key.Type(), word))
	}
}
