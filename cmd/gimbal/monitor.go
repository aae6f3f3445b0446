package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/axis"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var monitorInterval time.Duration

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Show the live heartbeat and estimates of every axis",
	Long: `Displays the last heartbeat and encoder estimates received from every
configured axis. Estimates are polled with remote requests on every refresh.
Nothing is commanded.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 200*time.Millisecond, "Refresh interval")
	rootCmd.AddCommand(monitorCmd)
}

type monitorTickMsg time.Time

type monitorModel struct {
	client    *odrive.Client
	registry  *axis.Registry
	connInfo  string
	snapshots []axis.Runtime
	pollErr   error
	quitting  bool
}

func monitorTick() tea.Cmd {
	return tea.Tick(monitorInterval, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTick()
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case monitorTickMsg:
		m.pollErr = nil
		for _, address := range m.registry.Addresses() {
			if err := m.client.Poll(address, odrive.CmdGetEncoderEstimates); err != nil {
				m.pollErr = err
			}
		}
		m.snapshots = m.registry.Snapshots()
		return m, monitorTick()
	}
	return m, nil
}

var (
	monitorTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Background(lipgloss.Color("235")).Padding(0, 1)
	monitorHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	monitorOkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	monitorErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	monitorBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(monitorTitleStyle.Render("GIMBAL - AXIS MONITOR"))
	s.WriteString("\n")
	s.WriteString(monitorHeaderStyle.Render(fmt.Sprintf("Bus: %s | Press 'q' to quit", m.connInfo)))
	s.WriteString("\n\n")

	var table strings.Builder
	table.WriteString(monitorHeaderStyle.Render(fmt.Sprintf("%-4s %-12s %-22s %-16s %-28s %10s %10s",
		"AXIS", "ADDRESS", "STATE", "PROCEDURE", "ERROR", "POS", "VEL")))
	for _, runtime := range m.snapshots {
		table.WriteString("\n")
		table.WriteString(formatRuntime(runtime))
	}
	s.WriteString(monitorBoxStyle.Render(table.String()))
	s.WriteString("\n")

	if m.pollErr != nil {
		s.WriteString(monitorErrorStyle.Render("poll failed: " + m.pollErr.Error()))
		s.WriteString("\n")
	}
	return s.String()
}

func formatRuntime(runtime axis.Runtime) string {
	state, procedure, axisError := "-", "-", "-"
	if runtime.HasHeartbeat {
		state = runtime.Heartbeat.AxisState.String()
		procedure = runtime.Heartbeat.ProcedureResult.String()
		axisError = runtime.Heartbeat.AxisError.String()
	}

	position, velocity := "-", "-"
	if runtime.HasEstimate {
		position = fmt.Sprintf("%.4f", runtime.PositionEstimate)
		velocity = fmt.Sprintf("%.4f", runtime.VelocityEstimate)
	}

	errorStyle := monitorOkStyle
	if runtime.HasHeartbeat && runtime.Heartbeat.AxisError != odrive.AxisErrorNone {
		errorStyle = monitorErrorStyle
	}

	return fmt.Sprintf("%-4s %-12s %-22s %-16s %s %10s %10s",
		runtime.Name,
		fmt.Sprintf("%d/%d", runtime.Address.NodeID, runtime.Address.Axis),
		state,
		procedure,
		errorStyle.Render(fmt.Sprintf("%-28s", axisError)),
		position,
		velocity,
	)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	bus, connInfo, err := OpenBus()
	if err != nil {
		return err
	}
	defer bus.Disconnect()

	logger.SetOutput(io.Discard)

	client := newClient(bus)
	rig, err := axis.NewRig(client, rigConfig())
	if err != nil {
		return err
	}
	rig.Start()
	defer rig.Stop()

	m := monitorModel{
		client:    client,
		registry:  rig.Registry(),
		connInfo:  connInfo,
		snapshots: rig.Registry().Snapshots(),
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
