package hwkit

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	dnslog "github.com/brutella/dnssd/log"
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	hklog "github.com/brutella/hap/log"
	"github.com/pkg/errors"
)

const defaultHomeKitDirectory = "./homekit"
const homeKitBridgeAuthor = "github.com/hubertat"

type HkThing interface {
	GetHk() *accessory.A
	GetUniqueId() uint64
}

func (hk *HwKit) getHkThings() (things []HkThing) {
	for _, th := range hk.Sensors {
		things = append(things, th)
	}
	for _, th := range hk.Pumps {
		things = append(things, th)
	}
	return
}

func (hk *HwKit) GetHkAccessories(firmwareVersion string) (acc []*accessory.A) {
	acc = []*accessory.A{}

	for _, th := range hk.getHkThings() {
		a := th.GetHk()
		if a == nil {
			continue
		}
		if a.Info != nil && a.Info.FirmwareRevision != nil {
			a.Info.FirmwareRevision.SetValue(firmwareVersion)
		}
		a.Id = th.GetUniqueId()
		acc = append(acc, a)
	}

	return
}

// StartHomeKit serves the bridge until ctx is cancelled or the process
// receives SIGINT/SIGTERM.
func (hk *HwKit) StartHomeKit(ctx context.Context, firmwareVersion string) error {
	bridge := accessory.NewBridge(accessory.Info{
		Name:         hk.kitName(),
		Manufacturer: homeKitBridgeAuthor,
		Firmware:     firmwareVersion,
	})

	var store hap.Store
	if len(hk.HkDirectory) > 1 {
		store = hap.NewFsStore(hk.HkDirectory)
	} else {
		store = hap.NewFsStore(defaultHomeKitDirectory)
	}
	hkServer, err := hap.NewServer(store, bridge.A, hk.GetHkAccessories(firmwareVersion)...)
	if err != nil {
		return errors.Wrap(err, "failed to create HomeKit server")
	}
	hkServer.Pin = hk.HkPin
	if len(hk.HkAddress) > 0 {
		hkServer.Addr = hk.HkAddress
	}

	if hk.HkDebug {
		hklog.Debug.Enable()
		dnslog.Debug.Enable()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c:
		case <-ctx.Done():
		}
		signal.Stop(c)
		cancel()
	}()

	return hkServer.ListenAndServe(ctx)
}
