package main

import (
	"fmt"
	"time"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/axis"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/slcan"
	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"
)

var axisNames = []string{"X", "Y", "Z"}

// OpenBus opens the configured bus, retrying while the interface is not up yet,
// and starts receiving frames. It returns a description for display.
func OpenBus() (*odrive.Bus, string, error) {
	can := appConfig.CAN

	var (
		bus      *odrive.Bus
		connInfo string
	)
	err := retry.Do(func() error {
		if can.SLCANPort != "" {
			rwc, err := slcan.Open(can.SLCANPort, can.SLCANBaud, can.SLCANBitrate)
			if err != nil {
				return err
			}
			bus = odrive.NewBusWithReadWriteCloser(rwc, can.SLCANPort)
			connInfo = fmt.Sprintf("SLCAN %s @ %d bit/s", can.SLCANPort, can.SLCANBitrate)
			return nil
		}

		var err error
		bus, err = odrive.NewBusForInterfaceWithName(can.Interface)
		connInfo = fmt.Sprintf("SocketCAN %s", can.Interface)
		return err
	},
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.WithError(err).WithField("attempt", n+1).Warn("failed to open bus")
		}),
	)
	if err != nil {
		return nil, "", err
	}

	bus.Logger = logger
	go func() {
		if err := bus.ConnectAndPublish(); err != nil {
			logger.WithError(err).Debug("bus stopped")
		}
	}()
	return bus, connInfo, nil
}

func newClient(bus odrive.Transport) *odrive.Client {
	return &odrive.Client{
		Bus:     bus,
		Catalog: odrive.DefaultCatalog(),
		Timeout: appConfig.Endpoints.Timeout,
		Logger:  logger,
	}
}

func loadEndpoints() (*endpoint.Catalog, error) {
	if appConfig.Endpoints.File == "" {
		return endpoint.DefaultCatalog(), nil
	}
	return endpoint.LoadEndpointsFile(appConfig.Endpoints.File)
}

func gimbalAxes() []axis.AxisConfig {
	axes := make([]axis.AxisConfig, len(appConfig.Nodes))
	for i, node := range appConfig.Nodes {
		name := fmt.Sprintf("axis%d", i)
		if i < len(axisNames) {
			name = axisNames[i]
		}
		axes[i] = axis.AxisConfig{Name: name, Address: odrive.Address{NodeID: node}}
	}
	return axes
}

func rigConfig() axis.Config {
	return axis.Config{
		Axes:            gimbalAxes(),
		StepTimeout:     appConfig.Motion.StepTimeout,
		MoveTimeout:     appConfig.Motion.MoveTimeout,
		Tolerance:       appConfig.Motion.Tolerance,
		SymmetricUnwrap: appConfig.Motion.SymmetricUnwrap,
		Logger:          logger,
	}
}

func axisLogger(address odrive.Address) logrus.FieldLogger {
	return logger.WithFields(logrus.Fields{"node": address.NodeID, "axis": address.Axis})
}
