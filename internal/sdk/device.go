package sdk

// Device is the asynchronous driver contract. Every method returns
// immediately; results arrive later on a goroutine owned by the driver.
// Each request callback is invoked exactly once, success or failure, and the
// driver serializes requests in the order they were issued.
type Device interface {
	ConnectWifi(key AccessKey)
	Disconnect()

	// SetOnConnect and SetOnDisconnect replace the link notifications. They
	// may be called from the driver goroutine at any time after connect.
	SetOnConnect(cb func())
	SetOnDisconnect(cb func(DisconnectReason))

	RequestGetInfo(cb func(ResponseCode, DeviceInfo))
	RequestGetMonitorData(cb func(ResponseCode, MonitorData))
	RequestGetStatistics(cb func(ResponseCode, MonitorStatistics))
	RequestGetFgStatistics(cb func(ResponseCode, FuelgaugeStatistics))
	RequestGetLogFileList(cb func(ResponseCode, []LogFileDescriptor))
	RequestReadLogFile(fileID, offset, size uint32, cb func(ResponseCode, []byte))

	// Close releases the driver. Outstanding requests resolve with
	// RspCancelled.
	Close() error
}
