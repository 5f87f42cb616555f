// Package config handles configuration loading for onebot-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file, or a TOML file when the name ends
// in .toml. Environment variables are expanded first, then durations are
// parsed, defaults applied and the result validated.
//
// # Configuration File
//
// Location, in order:
//
//  1. --config flag
//  2. ONEBOT_GATEWAY_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/onebot-gateway/gateway.yaml (~/.config when unset)
//
// Run "onebot-gateway init" to write the annotated Sample.
//
// # Environment Variable Expansion
//
//	server:
//	  access_token: "${ONEBOT_ACCESS_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// transport.action_timeout, transport.stop_timeout, transport.ping_interval
// and qq.dedupe_ttl use time.ParseDuration syntax ("30s", "5m").
//
// # Defaults
//
// Listener 0.0.0.0:6700, admin API 127.0.0.1:6701, action timeout 30s, stop
// timeout 5s, ping every 30s, 10 MiB frame limit, 4 queued turns per session,
// 5m / 10000 entry duplicate window, mention required in groups, pending
// actions failed on disconnect, info level text logs.
package config
