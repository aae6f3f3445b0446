package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/device"
	"github.com/spf13/cobra"
)

var (
	faultNode  int
	faultAfter time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate the motor controllers of the rig on a bus",
	Long: `Attaches one simulated motor controller per configured node to the bus, e.g.
a virtual CAN interface, so that run, endpoint and monitor can be exercised
without hardware.

--fault-node and --fault-after inject a DRV_FAULT into one node once the given
time has passed.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().IntVar(&faultNode, "fault-node", -1, "Node to inject a fault into")
	simulateCmd.Flags().DurationVar(&faultAfter, "fault-after", 0, "Delay before the fault is injected")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus, connInfo, err := OpenBus()
	if err != nil {
		return err
	}
	defer bus.Disconnect()

	endpoints, err := loadEndpoints()
	if err != nil {
		return err
	}

	client := newClient(bus)
	for _, node := range appConfig.Nodes {
		address := odrive.Address{NodeID: node}

		dev := device.New(address)
		dev.Endpoints = endpoints
		dev.Logger = logger
		dev.Start(client)
		defer dev.Close()

		if int(node) == faultNode {
			timer := time.AfterFunc(faultAfter, func() {
				axisLogger(address).Warn("injecting DRV_FAULT")
				dev.InjectFault(odrive.AxisErrorDrvFault)
			})
			defer timer.Stop()
		}
	}

	logger.WithField("bus", connInfo).Infof("simulating %d nodes", len(appConfig.Nodes))
	<-ctx.Done()
	return nil
}
