// Package device holds the platform side of the Danfoss Air bridge.
//
// It provides:
//   - Store: the in-memory view of the device (availability, which
//     capabilities are present, their last values) with change listeners
//   - SettingsRepository: persisted user settings, notably the hostname
//     whose change triggers a session reinitialisation
//   - StateHistoryRepository: capability snapshots recorded over time
//
// The session controller mutates the Store through a narrow platform
// interface; the MQTT bridge and HTTP API read snapshots and subscribe to
// changes.
//
// # Usage
//
//	store := device.NewStore(cfg.Device.ID, cfg.Device.Name, danfoss.DefaultCapabilities())
//	store.OnChange(func(c device.Change) { publish(c.Snapshot) })
//
//	settings := device.NewSQLiteSettingsRepository(db.DB)
//	s, err := settings.Get(ctx, cfg.Device.ID)
package device
