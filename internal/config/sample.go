// ABOUTME: Annotated sample configuration written by the init command
// ABOUTME: Kept parseable; tests load it to catch drift from the schema

package config

// Sample is a commented starting configuration.
const Sample = `# onebot-gateway configuration

server:
  # Reverse WebSocket listener the bridge dials into.
  host: "0.0.0.0"
  port: 6700
  # Shared secret; bridges send it as "Authorization: Bearer <token>"
  # or as ?access_token=<token>. Leave empty to accept any bridge.
  access_token: "${ONEBOT_ACCESS_TOKEN}"
  # Admin HTTP API. "-" disables it.
  admin_addr: "127.0.0.1:6701"

auth:
  # Optional HS256 secret (32+ bytes) for signed bridge/admin tokens.
  jwt_secret: "${ONEBOT_JWT_SECRET}"

transport:
  action_timeout: "30s"
  stop_timeout: "5s"
  ping_interval: "30s"
  read_limit: 10485760
  # Fail in-flight actions as soon as their bridge disconnects instead of
  # waiting for action_timeout.
  fail_pending_on_disconnect: true

gate:
  # Turns allowed to wait per conversation while one is running.
  max_queue: 4

qq:
  require_mention: true
  allowed_users: []
  allowed_groups: []
  overflow_notice: "message skipped due to load, try later"
  dedupe_ttl: "5m"
  dedupe_size: 10000

database:
  # SQLite audit ledger. Leave empty to disable.
  path: ""

logging:
  level: "info"   # debug, info, warn, error
  format: "text"  # text, json
`
