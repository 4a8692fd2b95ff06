package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/haivivi/convrelay/pkg/audio/portaudio"
	"github.com/haivivi/convrelay/pkg/cli"
)

var devicesFormat string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture devices",
	Long: `List the audio input devices PortAudio can see.

The INDEX column (or any part of the NAME) can be passed to --device or
stored as audio_device in a context.

Examples:
  convrelay devices
  convrelay devices -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := portaudio.Devices()
		if err != nil {
			return classifyDeviceError(err)
		}
		if len(devices) == 0 && devicesFormat == string(cli.FormatTable) {
			fmt.Println("No input devices found")
			return nil
		}
		return cli.Output(deviceTable(devices), cli.OutputOptions{Format: cli.OutputFormat(devicesFormat)})
	},
}

// deviceTable lists capture devices, the default one marked.
type deviceTable []portaudio.DeviceInfo

func (deviceTable) Columns() []string {
	return []string{"DEFAULT", "INDEX", "NAME", "CHANNELS", "RATE"}
}

func (t deviceTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, d := range t {
		marker := ""
		if d.IsDefaultInput {
			marker = "*"
		}
		rows = append(rows, []string{
			marker,
			strconv.Itoa(d.Index),
			d.Name,
			strconv.Itoa(d.MaxInputChannels),
			strconv.FormatFloat(d.DefaultSampleRate, 'f', 0, 64),
		})
	}
	return rows
}

func init() {
	devicesCmd.Flags().StringVarP(&devicesFormat, "output", "o", "table", "output format: table, yaml or json")
}
