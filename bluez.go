package main

import (
	"fmt"
	"slices"

	"github.com/godbus/dbus/v5"
)

const (
	busName      = "org.bluez"
	adapterPath  = "/org/bluez/hci0"
	adapterIface = "org.bluez.Adapter1"
	propsIface   = "org.freedesktop.DBus.Properties"
	propsSignal  = "org.freedesktop.DBus.Properties.PropertiesChanged"
)

// bluez answers whether Bluetooth LE is usable for provisioning. WiFi
// connections never depend on it.
type bluez struct {
	conn *dbus.Conn
}

func newBluez() (*bluez, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	if !slices.Contains(names, busName) {
		conn.Close()
		return nil, fmt.Errorf("org.bluez not found on system bus, is bluetooth.service running?")
	}
	return &bluez{conn: conn}, nil
}

func (b *bluez) close() {
	b.conn.Close()
}

func (b *bluez) adapterPowered() (bool, error) {
	var v dbus.Variant
	err := b.conn.Object(busName, adapterPath).Call(propsIface+".Get", 0, adapterIface, "Powered").Store(&v)
	if err != nil {
		return false, err
	}
	return variantBool(v, "Powered")
}

func variantBool(v dbus.Variant, prop string) (bool, error) {
	val, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s is not bool", prop)
	}
	return val, nil
}

// subscribeAdapter streams PropertiesChanged signals of the adapter.
func (b *bluez) subscribeAdapter() (chan *dbus.Signal, error) {
	err := b.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(adapterPath),
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe to adapter: %w", err)
	}
	ch := make(chan *dbus.Signal, 16)
	b.conn.Signal(ch)
	return ch, nil
}

// poweredChange extracts a change of the adapter's Powered property.
// Body: [interface_name string, changed_props map[string]Variant, invalidated []string]
func poweredChange(sig *dbus.Signal) (powered, ok bool) {
	if sig == nil || sig.Name != propsSignal || sig.Path != adapterPath || len(sig.Body) < 2 {
		return false, false
	}
	if iface, _ := sig.Body[0].(string); iface != adapterIface {
		return false, false
	}
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	v, found := changed["Powered"]
	if !found {
		return false, false
	}
	powered, err := variantBool(v, "Powered")
	return powered, err == nil
}

// probeBLE is a yes/no fact: any failure to reach BlueZ means no.
func probeBLE() bool {
	bz, err := newBluez()
	if err != nil {
		return false
	}
	defer bz.close()
	on, err := bz.adapterPowered()
	return err == nil && on
}
