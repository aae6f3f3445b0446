package endpointServer

import (
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint"
)

func (server *Server) handleWrite(key endpoint.Key, value endpoint.Value) {
	if server.Write == nil {
		return
	}

	server.Logger.WithField("endpoint", key.Name()).WithField("value", value.String()).Debug("endpoint write")
	server.Write(key, value)
}
