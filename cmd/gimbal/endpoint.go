package main

import (
	"fmt"
	"strconv"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint/endpointClient"
	"github.com/spf13/cobra"
)

var endpointAxis uint8

var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Read and write controller endpoints",
}

var endpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the known endpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoints, err := loadEndpoints()
		if err != nil {
			return err
		}
		for _, key := range endpoints.Keys() {
			fmt.Printf("%5d  %-8s %s\n", key.ID(), key.Type(), key.Name())
		}
		return nil
	},
}

var endpointGetCmd = &cobra.Command{
	Use:   "get <node> <endpoint>",
	Short: "Read an endpoint of a node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, key, err := endpointTarget(args[0], args[1])
		if err != nil {
			return err
		}

		client, closeBus, err := endpointClientBus()
		if err != nil {
			return err
		}
		defer closeBus()

		value, err := endpointClient.Read{
			Address: address,
			Key:     key,
			Timeout: appConfig.Endpoints.Timeout,
		}.Do(client)
		if err != nil {
			return err
		}

		fmt.Printf("%s = %s\n", key.Name(), value)
		return nil
	},
}

var endpointSetCmd = &cobra.Command{
	Use:   "set <node> <endpoint> <value>",
	Short: "Write an endpoint of a node",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, key, err := endpointTarget(args[0], args[1])
		if err != nil {
			return err
		}

		value, err := endpoint.ParseValue(key.Type(), args[2])
		if err != nil {
			return err
		}

		client, closeBus, err := endpointClientBus()
		if err != nil {
			return err
		}
		defer closeBus()

		return endpointClient.Write{Address: address, Key: key, Value: value}.Do(client)
	},
}

func init() {
	endpointCmd.PersistentFlags().Uint8VarP(&endpointAxis, "axis", "a", 0, "Axis of the node")
	endpointCmd.AddCommand(endpointListCmd, endpointGetCmd, endpointSetCmd)
	rootCmd.AddCommand(endpointCmd)
}

func endpointTarget(nodeArg string, name string) (odrive.Address, endpoint.Key, error) {
	node, err := strconv.ParseUint(nodeArg, 0, 8)
	if err != nil {
		return odrive.Address{}, endpoint.Key{}, fmt.Errorf("invalid node id %q", nodeArg)
	}

	endpoints, err := loadEndpoints()
	if err != nil {
		return odrive.Address{}, endpoint.Key{}, err
	}

	key, err := endpoints.Lookup(name)
	if err != nil {
		return odrive.Address{}, endpoint.Key{}, err
	}
	return odrive.Address{NodeID: uint8(node), Axis: endpointAxis}, key, nil
}

func endpointClientBus() (*odrive.Client, func(), error) {
	bus, _, err := OpenBus()
	if err != nil {
		return nil, nil, err
	}
	return newClient(bus), func() { bus.Disconnect() }, nil
}
