package canharness

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type AdapterInfo struct {
	Name               string
	Description        string
	RequiresSerialPort bool
	New                func(*AdapterConfig) (Controller, error)
}

func (a *AdapterInfo) String() string {
	return fmt.Sprintf("%s | %s, requires serial port: %v", a.Name, a.Description, a.RequiresSerialPort)
}

// AdapterConfig holds host side settings for a driver, as opposed to the
// bus parameters in BusConfig.
type AdapterConfig struct {
	Debug        bool
	Port         string
	PortBaudrate int
	TxQueueLen   int
	RxQueueLen   int
	OnMessage    func(string)
}

const (
	DefaultTxQueueLen = 5
	DefaultRxQueueLen = 5
)

var (
	adapterMu  sync.RWMutex
	adapterMap = make(map[string]*AdapterInfo)
)

func NewAdapter(adapterName string, cfg *AdapterConfig) (Controller, error) {
	if cfg == nil {
		cfg = &AdapterConfig{}
	}
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(msg string) {
			zap.L().Debug(msg, zap.String("adapter", adapterName))
		}
	}
	adapterMu.RLock()
	adapter, found := adapterMap[adapterName]
	adapterMu.RUnlock()
	if !found {
		return nil, fmt.Errorf("%w %q", ErrUnknownAdapter, adapterName)
	}
	return adapter.New(cfg)
}

func RegisterAdapter(adapter *AdapterInfo) error {
	adapterMu.Lock()
	defer adapterMu.Unlock()
	if _, found := adapterMap[adapter.Name]; !found {
		adapterMap[adapter.Name] = adapter
		return nil
	}
	return fmt.Errorf("adapter %s already registered", adapter.Name)
}

func ListAdapterNames() []string {
	adapterMu.RLock()
	defer adapterMu.RUnlock()
	var out []string
	for name := range adapterMap {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

func ListAdapters() []AdapterInfo {
	adapterMu.RLock()
	defer adapterMu.RUnlock()
	var out []AdapterInfo
	for _, adapter := range adapterMap {
		out = append(out, *adapter)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out
}
