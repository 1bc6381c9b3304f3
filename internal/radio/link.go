package radio

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	bluezDevice       = "org.bluez.Device1"
	dbusProperties    = "org.freedesktop.DBus.Properties"
	propertiesChanged = dbusProperties + ".PropertiesChanged"
)

// linkMatch selects the BlueZ device property changes on the system bus.
var linkMatch = []dbus.MatchOption{
	dbus.WithMatchInterface(dbusProperties),
	dbus.WithMatchMember("PropertiesChanged"),
	dbus.WithMatchArg(0, bluezDevice),
}

// peerLink follows BlueZ Device1.Connected changes and reports the
// connect and disconnect of one peer at a time.
type peerLink struct {
	h      Handlers
	log    *slog.Logger
	prefix string // object path prefix of the adapter's devices

	mu   sync.Mutex
	peer dbus.ObjectPath
}

func newPeerLink(adapterPath string, h Handlers, log *slog.Logger) *peerLink {
	return &peerLink{h: h, log: log, prefix: strings.TrimSuffix(adapterPath, "/") + "/"}
}

func (l *peerLink) connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peer != ""
}

// update applies one Connected change. While a peer is connected, other
// devices connecting or disconnecting are ignored.
func (l *peerLink) update(path dbus.ObjectPath, connected bool) {
	if !strings.HasPrefix(string(path), l.prefix) {
		return
	}
	l.mu.Lock()
	switch {
	case connected && l.peer == "":
		l.peer = path
		l.mu.Unlock()
		l.log.Info("peer connected", "device", path)
		if l.h.OnConnected != nil {
			l.h.OnConnected()
		}
	case !connected && l.peer == path:
		l.peer = ""
		l.mu.Unlock()
		// BlueZ does not expose the HCI reason code.
		l.log.Info("peer disconnected", "device", path)
		if l.h.OnDisconnected != nil {
			l.h.OnDisconnected(0)
		}
	default:
		l.mu.Unlock()
	}
}

// watch feeds bus signals to update until signals is closed or stop fires.
func (l *peerLink) watch(signals <-chan *dbus.Signal, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if path, connected, ok := connectedChange(sig); ok {
				l.update(path, connected)
			}
		}
	}
}

// connectedChange extracts a Device1.Connected change from a
// PropertiesChanged signal.
func connectedChange(sig *dbus.Signal) (path dbus.ObjectPath, connected bool, ok bool) {
	if sig == nil || sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return "", false, false
	}
	if iface, _ := sig.Body[0].(string); iface != bluezDevice {
		return "", false, false
	}
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	v, present := changed["Connected"]
	if !present {
		return "", false, false
	}
	connected, ok = v.Value().(bool)
	return sig.Path, connected, ok
}
