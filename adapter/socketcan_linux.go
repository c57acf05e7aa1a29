package adapter

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/devboard/canharness"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/candevice"
	"go.einride.tech/can/pkg/socketcan"
)

func init() {
	for _, dev := range FindDevices() {
		name := "SocketCAN " + dev
		if err := canharness.RegisterAdapter(&canharness.AdapterInfo{
			Name:               name,
			Description:        "Linux SocketCAN interface",
			RequiresSerialPort: false,
			New:                NewSocketCANFromDevName(dev),
		}); err != nil {
			panic(err)
		}
	}
}

// SocketCAN transmits and receives on separate sockets. The kernel loops
// frames sent on one socket back to the others on the same interface, which
// gives self reception without echoing in software.
type SocketCAN struct {
	*canharness.BaseController

	dev     *candevice.Device
	txConn  net.Conn
	rxConn  net.Conn
	tx      *socketcan.Transmitter
	rx      *socketcan.Receiver
	readers sync.WaitGroup
}

func NewSocketCANFromDevName(dev string) func(cfg *canharness.AdapterConfig) (canharness.Controller, error) {
	return func(cfg *canharness.AdapterConfig) (canharness.Controller, error) {
		cfg.Port = dev
		return NewSocketCAN(cfg)
	}
}

func NewSocketCAN(cfg *canharness.AdapterConfig) (canharness.Controller, error) {
	return &SocketCAN{
		BaseController: canharness.NewBaseController("SocketCAN", cfg),
	}, nil
}

func isVirtual(dev string) bool {
	return strings.HasPrefix(dev, "vcan")
}

func (a *SocketCAN) Configure(ctx context.Context, cfg *canharness.BusConfig) error {
	if err := a.Install(cfg); err != nil {
		return err
	}
	port := a.Config().Port
	if isVirtual(port) {
		return nil
	}
	d, err := candevice.New(port)
	if err != nil {
		return err
	}
	a.dev = d
	if up, err := d.IsUp(); err == nil && up {
		if err := d.SetDown(); err != nil {
			return err
		}
	}
	return d.SetBitrate(uint32(cfg.CANRate * 1000))
}

func (a *SocketCAN) Start() error {
	port := a.Config().Port
	if a.dev != nil {
		if err := a.dev.SetUp(); err != nil {
			return err
		}
	}
	ctx := context.Background()
	txConn, err := socketcan.DialContext(ctx, "can", port)
	if err != nil {
		return fmt.Errorf("dial %s: %w", port, err)
	}
	rxConn, err := socketcan.DialContext(ctx, "can", port)
	if err != nil {
		txConn.Close()
		return fmt.Errorf("dial %s: %w", port, err)
	}
	stop, err := a.Activate()
	if err != nil {
		txConn.Close()
		rxConn.Close()
		return err
	}
	a.txConn, a.rxConn = txConn, rxConn
	a.tx = socketcan.NewTransmitter(txConn)
	a.rx = socketcan.NewReceiver(rxConn)
	a.readers.Add(1)
	go a.recvManager(a.rx, stop)
	go a.sendManager(a.tx, stop)
	return nil
}

func (a *SocketCAN) Stop() error {
	if err := a.Deactivate(); err != nil {
		return err
	}
	a.closeConns()
	return nil
}

func (a *SocketCAN) closeConns() {
	if a.txConn != nil {
		a.txConn.Close()
		a.txConn = nil
	}
	if a.rxConn != nil {
		a.rxConn.Close()
		a.rxConn = nil
	}
	a.readers.Wait()
}

func (a *SocketCAN) Close() error {
	a.BaseController.Close()
	a.closeConns()
	if a.dev != nil {
		return a.dev.SetDown()
	}
	return nil
}

func (a *SocketCAN) recvManager(rx *socketcan.Receiver, stop <-chan struct{}) {
	defer a.readers.Done()
	for rx.Receive() {
		if rx.HasErrorFrame() {
			a.Warn(fmt.Sprintf("error frame: %v", rx.ErrorFrame()))
			continue
		}
		f := rx.Frame()
		var frame *canharness.CANFrame
		if f.IsExtended {
			frame = canharness.NewExtendedFrame(f.ID, f.Data[:f.Length], canharness.Incoming)
		} else {
			frame = canharness.NewFrame(f.ID, f.Data[:f.Length], canharness.Incoming)
		}
		a.Deliver(frame)
	}
	select {
	case <-stop:
	default:
		if err := rx.Err(); err != nil {
			a.Fatal(fmt.Errorf("socketcan receive: %w", err))
		}
	}
}

func (a *SocketCAN) sendManager(tx *socketcan.Transmitter, stop <-chan struct{}) {
	out := a.Outgoing()
	for {
		select {
		case <-stop:
			return
		case f := <-out:
			frame := can.Frame{
				ID:         f.Identifier(),
				Length:     uint8(f.Length()),
				IsExtended: f.Extended(),
			}
			copy(frame.Data[:], f.Data())
			if err := tx.TransmitFrame(context.Background(), frame); err != nil {
				a.Error(fmt.Errorf("socketcan transmit: %w", err))
				continue
			}
			a.Sent(f)
		}
	}
}

// FindDevices lists network interfaces that look like CAN devices.
func FindDevices() (dev []string) {
	iFaces, _ := net.Interfaces()
	for _, i := range iFaces {
		if strings.Contains(i.Name, "can") {
			dev = append(dev, i.Name)
		}
	}
	return
}
