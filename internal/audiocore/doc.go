// Package audiocore discovers audio devices and routes audio between them.
//
// # Components
//
//   - DeviceRegistry: queries the Host for the current device set and classifies
//     each device by input/output capability.
//   - RoutingEngine: owns the virtual cables. Each cable connects the capture
//     stream of a source device to the playback stream of a sink device through
//     a mixer bus owned by the sink, so several sources can feed one sink.
//   - ConnectionCatalog: the observable set of active cables. Reads are lock
//     free snapshots; mutations happen inside the engine's critical section.
//
// # Route lifecycle
//
//	Requested → Constructed → Active → Stopped
//	     └──────────┴──→ Failed
//
// Stopped and Failed are terminal. A new cable for the same (source, sink)
// pair needs a fresh CreateRoute.
//
// # Shared engine
//
// All cables share one processing engine in the Host. The engine is reference
// counted: it is started when the first cable becomes active and stopped when
// the last one goes away. Starting or stopping one cable never restarts the
// engine underneath the others.
//
// # Concurrency
//
// RoutingEngine methods are safe for concurrent use. Route state transitions
// and catalog mutations are serialized by one mutex. Device removal
// notifications from the Host are queued and handled on the engine's own
// goroutine, so a Host may deliver them from any thread, including its audio
// callback thread.
package audiocore
