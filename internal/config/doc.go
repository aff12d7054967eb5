// Package config loads bidictl configuration.
//
// Configuration lives in bidi.toml or bidi.json. Load looks for bidi.toml
// first. Unknown keys are rejected so a typo does not silently fall back to
// a default.
//
// # TOML
//
//	url = "ws://127.0.0.1:9222/session"
//	logLevel = "debug"
//
//	[transport]
//	commandTimeout = "30s"
//
//	[websocket]
//	handshakeTimeout = "10s"
//	maxMessageSize = 67108864
//
//	[websocket.headers]
//	Authorization = "Bearer token"
//
//	[recorder]
//	path = "traffic.db"
//
//	[metrics]
//	addr = ":9464"
//
// # JSON
//
//	{
//	  "url": "ws://127.0.0.1:9222/session",
//	  "transport": { "commandTimeout": "30s" },
//	  "recorder": { "path": "traffic.db" }
//	}
//
// Durations use time.ParseDuration syntax. A commandTimeout of "0s"
// disables the default command deadline.
package config
