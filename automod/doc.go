// Automatic moderation for group chats: flood detection, content rules, a warning ledger with escalation, and enforcement of mutes, kicks, and bans. Also home to a small scheduled-post dispatcher.
//
// This package has no code of its own. The pieces live in sub-packages:
//
//   - `automod/chat`: platform-neutral value types (groups, users, messages, actions) and the Platform, RoleOracle, and Clock interfaces
//   - `automod/policy`: per-group configuration, with in-memory, file, and redis-backed stores
//   - `automod/floodstore`: sliding-window message rate tracking, in memory or in redis
//   - `automod/keyword`: the content filter (banned words, excessive emoji, links)
//   - `automod/ledger`: durable warnings and moderation action log
//   - `automod/enforce`: applies actions against the platform and records them
//   - `automod/engine`: ties the above together for each inbound message and admin request
//   - `automod/schedule`: deferred and cross-posted messages
//   - `automod/platform/telegram`: the Telegram Bot API adapter
//
// See `cmd/groupmod` for a daemon built on these packages.
package automod
