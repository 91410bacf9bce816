// Package actor implements meshrt's process model: PIDs, mailboxes with
// selective receive, an M:N work-stealing scheduler, linking and
// monitoring, OTP-style supervision, a synchronous call/reply layer, and
// best-effort cross-node transport.
package actor
