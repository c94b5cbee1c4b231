// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"vizpipe/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ScreenType defines which screen of the device picker is shown.
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// SampleRates are the rates offered on the configuration screen.
var SampleRates = []float64{44100, 48000, 88200, 96000}

// Selection is the outcome of the device picker. Its yaml form is a
// fragment of the config file.
type Selection struct {
	InputDevice int     `yaml:"input_device"`
	SampleRate  float64 `yaml:"sample_rate"`
	DeviceName  string  `yaml:"-"`
}

// DeviceFetcher lists the devices shown by the picker.
type DeviceFetcher func() ([]audio.Device, error)

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

var (
	quitKey   = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	upKey     = key.NewBinding(key.WithKeys("up", "k"))
	downKey   = key.NewBinding(key.WithKeys("down", "j"))
	selectKey = key.NewBinding(key.WithKeys("enter"))
	backKey   = key.NewBinding(key.WithKeys("esc"))
)

// DeviceListModel lists audio devices and lets the user pick an input
// device and sample rate.
type DeviceListModel struct {
	fetch         DeviceFetcher
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	sampleRateIndex int
	selection       *Selection
}

// NewDeviceListModel creates a picker over the devices returned by fetch.
// A nil fetch lists the host's devices.
func NewDeviceListModel(fetch DeviceFetcher) DeviceListModel {
	if fetch == nil {
		fetch = audio.HostDevices
	}
	return DeviceListModel{
		fetch:        fetch,
		activeScreen: ListScreen,
	}
}

func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, quitKey) {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, upKey):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, downKey):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, selectKey):
				if len(m.devices) > 0 {
					m.activeScreen = ConfigScreen
					m.sampleRateIndex = 0
					for i, rate := range SampleRates {
						if rate == m.devices[m.selectedIndex].DefaultSampleRate {
							m.sampleRateIndex = i
							break
						}
					}
				}
			}

		case ConfigScreen:
			switch {
			case key.Matches(msg, backKey):
				m.activeScreen = ListScreen
			case key.Matches(msg, upKey):
				if m.sampleRateIndex > 0 {
					m.sampleRateIndex--
				}
			case key.Matches(msg, downKey):
				if m.sampleRateIndex < len(SampleRates)-1 {
					m.sampleRateIndex++
				}
			case key.Matches(msg, selectKey):
				device := m.devices[m.selectedIndex]
				if device.MaxInputChannels == 0 {
					break
				}
				m.selection = &Selection{
					InputDevice: device.ID,
					SampleRate:  SampleRates[m.sampleRateIndex],
					DeviceName:  device.Name,
				}
				return m, tea.Quit
			}
		}
		m.refresh()
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// Selected returns the confirmed selection, if the user made one.
func (m DeviceListModel) Selected() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

// Screen returns the screen currently shown.
func (m DeviceListModel) Screen() ScreenType { return m.activeScreen }

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen && len(m.devices) > 0 {
		m.viewport.SetContent(m.renderDeviceConfig())
		return
	}
	m.viewport.SetContent(m.renderDevices())
}

func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n\nPress q to exit."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Audio Device List")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Change Value • Enter: Use • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		deviceType := ""
		switch {
		case device.MaxInputChannels > 0 && device.MaxOutputChannels > 0:
			deviceType = "Input/Output"
		case device.MaxInputChannels > 0:
			deviceType = "Input"
		case device.MaxOutputChannels > 0:
			deviceType = "Output"
		}

		info := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, deviceType)
		info += fmt.Sprintf("    Input channels: %d, Output channels: %d\n",
			device.MaxInputChannels, device.MaxOutputChannels)
		info += fmt.Sprintf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)

		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "Configure Device: %s\n\n", device.Name)
	if device.MaxInputChannels == 0 {
		sb.WriteString(errorStyle.Render("This device has no input channels.") + "\n\n")
	}
	sb.WriteString("Sample Rate:\n")

	for i, rate := range SampleRates {
		marker := " "
		if i == m.sampleRateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz\n", marker, rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// StartDeviceListUI runs the device picker and returns the selection, if
// any.
func StartDeviceListUI(fetch DeviceFetcher) (Selection, bool, error) {
	p := tea.NewProgram(NewDeviceListModel(fetch), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Selection{}, false, err
	}
	sel, ok := final.(DeviceListModel).Selected()
	return sel, ok, nil
}
