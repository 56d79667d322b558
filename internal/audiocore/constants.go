package audiocore

// UnknownDeviceName is shown when a device name cannot be resolved.
const UnknownDeviceName = "Unknown Device"

// DefaultHistoryLimit is how many terminal routes Routes keeps for inspection.
const DefaultHistoryLimit = 64
