package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/kappaborg/HIJACK-Audio/internal/audiocore"
	"github.com/kappaborg/HIJACK-Audio/internal/conf"
)

// DeviceFilter selects which devices ListDevices prints.
type DeviceFilter int

const (
	AllDevices DeviceFilter = iota
	InputDevices
	OutputDevices
)

// ListDevices enumerates the host once and writes the device list to out,
// as a table or as JSON.
func ListDevices(ctx context.Context, settings *conf.Settings, filter DeviceFilter, asJSON bool, out io.Writer, opts ...Option) error {
	stack, err := Open(settings, opts...)
	if err != nil {
		return err
	}
	defer stack.Close()

	var devices []audiocore.Device
	switch filter {
	case InputDevices:
		devices = stack.Facade.Inputs(ctx)
	case OutputDevices:
		devices = stack.Facade.Outputs(ctx)
	default:
		devices = stack.Facade.Devices(ctx)
	}
	return WriteDevices(out, devices, asJSON)
}

// WriteDevices renders devices as a table or a JSON array.
func WriteDevices(out io.Writer, devices []audiocore.Device, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if devices == nil {
			devices = []audiocore.Device{}
		}
		return enc.Encode(devices)
	}

	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "No audio devices found.")
		return err
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Name", "In", "Out", "Default"})
	for _, d := range devices {
		tw.AppendRow(table.Row{d.ID, d.Name, d.InputStreams, d.OutputStreams, defaultMarks(d)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	_, err := fmt.Fprintln(out, tw.Render())
	return err
}

func defaultMarks(d audiocore.Device) string {
	var marks []string
	if d.DefaultInput {
		marks = append(marks, "input")
	}
	if d.DefaultOutput {
		marks = append(marks, "output")
	}
	return strings.Join(marks, ",")
}
