package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/axis"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint/endpointClient"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/orientation"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	udpAddr string
	wsAddr  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bring the axes up and track the incoming orientation",
	Long: `Brings every axis up (clear errors, encoder index search, position control,
closed loop), then commands the axes to follow the orientation datagrams
received over UDP. Commanded angles are broadcast to WebSocket clients.

Any axis error raised after bring-up stops every axis and ends the command.`,
	RunE: runGimbal,
}

func init() {
	runCmd.Flags().StringVar(&udpAddr, "udp", "", "UDP listen address for orientation datagrams (default from GIMBAL_UDP_ADDR)")
	runCmd.Flags().StringVar(&wsAddr, "ws", "", "HTTP listen address of the telemetry WebSocket (default from GIMBAL_WS_ADDR)")
	rootCmd.AddCommand(runCmd)
}

func runGimbal(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if udpAddr != "" {
		appConfig.UDPAddr = udpAddr
	}
	if wsAddr != "" {
		appConfig.WSAddr = wsAddr
	}

	bus, connInfo, err := OpenBus()
	if err != nil {
		return err
	}
	defer bus.Disconnect()
	logger.WithField("bus", connInfo).Info("bus open")

	client := newClient(bus)
	endpoints, err := loadEndpoints()
	if err != nil {
		return err
	}

	rig, err := axis.NewRig(client, rigConfig())
	if err != nil {
		return err
	}
	rig.Start()
	defer rig.Stop()

	logBusVoltage(ctx, client, endpoints, rig.Registry().Addresses())

	if err := rig.BringUpAll(ctx); err != nil {
		return fmt.Errorf("bring-up failed: %w", err)
	}
	defer func() {
		if err := rig.EmergencyStopAll(); err != nil {
			logger.WithError(err).Error("emergency stop failed")
		}
	}()
	logger.Info("all axes in closed loop control")

	latest := orientation.NewLatest()
	listener, err := orientation.Listen(appConfig.UDPAddr, latest, logger)
	if err != nil {
		return err
	}
	defer listener.Close()
	go func() {
		if err := listener.Serve(ctx); err != nil {
			logger.WithError(err).Error("orientation listener stopped")
		}
	}()

	telemetryServer := telemetry.NewServer(logger)
	go func() {
		if err := telemetryServer.ListenAndServe(ctx, appConfig.WSAddr); err != nil {
			logger.WithError(err).Error("telemetry server stopped")
		}
	}()

	logger.WithFields(logrus.Fields{
		"udp": listener.Addr().String(),
		"ws":  appConfig.WSAddr,
	}).Info("tracking")

	err = rig.Track(ctx, latest, telemetryServer)
	var fault axis.DeviceFault
	if errors.As(err, &fault) {
		return fmt.Errorf("stopped on fault: %w", err)
	}
	return err
}

// logBusVoltage reports the DC bus voltage of every node. An unanswered read
// is reported as unavailable.
func logBusVoltage(ctx context.Context, client *odrive.Client, endpoints *endpoint.Catalog, addresses []odrive.Address) {
	key, err := endpoints.Lookup("vbus_voltage")
	if err != nil {
		return
	}

	for _, address := range addresses {
		value, err := endpointClient.Read{
			Address: address,
			Key:     key,
			Timeout: appConfig.Endpoints.Timeout,
		}.DoContext(ctx, client)

		log := axisLogger(address)
		if err != nil {
			log.WithError(err).Warn("bus voltage unavailable")
			continue
		}
		log.WithField("vbus", value.String()).Info("bus voltage")
	}
}
