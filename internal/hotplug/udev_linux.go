package hotplug

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pilebones/go-udev/netlink"
	"golang.org/x/sys/unix"
)

// soundDevDir holds the ALSA device nodes udev creates.
const soundDevDir = "/dev/snd"

// checkSoundAccess reports whether the process may open the device nodes in
// dir. Without access udev still announces devices the host cannot list.
func checkSoundAccess(dir string) error {
	if err := unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("%s: insufficient permissions: %w", dir, err)
	}
	return nil
}

// startUdev calls trigger for every sound subsystem add or remove event.
func startUdev(ctx context.Context, logger *slog.Logger, trigger func()) (func(), error) {
	if err := checkSoundAccess(soundDevDir); err != nil {
		logger.Warn("sound devices not accessible; add the user to the audio group", "error", err)
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, err
	}

	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    map[string]string{"SUBSYSTEM": "sound"},
	})

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, rules)

	quit := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		defer close(monitorQuit)
		for {
			select {
			case <-ctx.Done():
				return
			case <-quit:
				return
			case ev := <-queue:
				logger.Debug("udev sound event", "action", string(ev.Action), "kobj", ev.KObj)
				trigger()
			case err := <-errs:
				logger.Warn("udev monitor error", "error", err)
			}
		}
	}()

	return func() {
		close(quit)
		<-exited
		_ = conn.Close()
	}, nil
}
