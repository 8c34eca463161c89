package engine

import (
	ble "github.com/antonvh/btbricks"
)

// eventClass groups event kinds by owning subsystem.
type eventClass uint8

const (
	classUnknown eventClass = iota
	classScan
	classClientGATT
	classServerGATT
	classSystem
)

func classOf(k ble.EventKind) eventClass {
	switch k {
	case ble.EvtScanResult, ble.EvtScanDone:
		return classScan
	case ble.EvtConnectComplete, ble.EvtServiceResult, ble.EvtServiceDone,
		ble.EvtCharacteristicResult, ble.EvtCharacteristicDone,
		ble.EvtNotification, ble.EvtWriteDone:
		return classClientGATT
	case ble.EvtCentralConnected, ble.EvtGattsWrite:
		return classServerGATT
	case ble.EvtDisconnectComplete, ble.EvtCentralDisconnected, ble.EvtMTUExchanged:
		return classSystem
	default:
		return classUnknown
	}
}

// HandleEvent is the single event sink. Events arrive strictly in
// order; classification forwards the unmodified payload to the owning
// subsystem. Unknown kinds are logged and dropped, non-fatal.
func (e *Engine) HandleEvent(ev ble.Event) {
	switch classOf(ev.Kind()) {
	case classScan:
		e.dispatchScan(ev)
	case classClientGATT:
		e.dispatchClient(ev)
	case classServerGATT:
		e.dispatchServer(ev)
	case classSystem:
		e.dispatchSystem(ev)
	default:
		e.logger.Warn("dropping unknown event kind:", ev.Kind())
	}
}

func (e *Engine) dispatchScan(ev ble.Event) {
	switch v := ev.(type) {
	case ble.ScanResult:
		e.discovery.HandleScanResult(v)
	case ble.ScanDone:
		e.discovery.HandleScanDone()
	}
}

func (e *Engine) dispatchClient(ev ble.Event) {
	switch v := ev.(type) {
	case ble.Notification:
		// Routed by the peer value handle that produced the value.
		e.registry.Trigger(v.ValueHandle, CbNotify, ev)
		return
	case ble.WriteDone:
		e.registry.Trigger(v.Handle, CbWriteDone, ev)
		return
	}

	c := e.currentCentral()
	if c == nil {
		// A discovery result for a connection that was already torn
		// down; dropping it is the documented cancellation behavior.
		e.logger.Debug("client event with no central machine:", ev.Kind())
		return
	}
	c.handleEvent(ev)
}

func (e *Engine) dispatchServer(ev ble.Event) {
	switch v := ev.(type) {
	case ble.CentralConnected:
		p := e.currentAdvertiser()
		if p == nil {
			e.logger.Warn("central connected with no advertiser, disconnecting:", v.Handle)
			if err := e.radio.Disconnect(v.Handle); err != nil {
				e.logger.Error("disconnect of orphan central:", err)
			}
			return
		}
		p.handleCentralConnected(v)
	case ble.GattsWrite:
		// Incoming writes route by the written value handle.
		e.registry.Trigger(v.ValueHandle, CbWrite, ev)
	}
}

func (e *Engine) dispatchSystem(ev ble.Event) {
	switch v := ev.(type) {
	case ble.MTUExchanged:
		if ctx, ok := e.table.Lookup(v.Handle); ok {
			ctx.SetMTU(v.MTU)
		}

	case ble.DisconnectComplete:
		// Listener fires before teardown, against a live context.
		e.registry.Trigger(v.Handle, CbDisconnected, ev)

		if c := e.currentCentral(); c != nil && c.ownsHandle(v.Handle) {
			c.handleDisconnect()
			defer e.releaseCentral(c)
		}
		e.teardown(v.Handle)

	case ble.CentralDisconnected:
		e.registry.Trigger(v.Handle, CbDisconnected, ev)

		p, ok := e.serverFor(v.Handle)
		e.teardown(v.Handle)
		if ok {
			e.unbindServer(v.Handle)
			p.handleCentralDisconnected(v.Handle)
		}
	}
}
