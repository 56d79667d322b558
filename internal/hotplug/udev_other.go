//go:build !linux

package hotplug

import (
	"context"
	"log/slog"

	"github.com/kappaborg/HIJACK-Audio/internal/errors"
)

func startUdev(context.Context, *slog.Logger, func()) (func(), error) {
	return nil, errors.NewStd("udev is only available on linux")
}
