package endpointServer

import (
	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint"
	"github.com/sirupsen/logrus"
)

func (server *Server) handleRead(key endpoint.Key) {
	if server.Read == nil {
		return
	}

	value, ok := server.Read(key)
	if !ok {
		return
	}

	err := server.client.Send(server.Address, odrive.CmdTxSdo, endpoint.ReplyRecord(key, value.Word()))
	if err != nil {
		server.Logger.WithFields(logrus.Fields{
			"endpoint": key.Name(),
			"node":     server.Address.NodeID,
		}).WithError(err).Warn("endpoint reply failed")
	}
}
