// Package notify delivers workflow notifications.
//
// Content transitions emit two kinds of Notification: awaiting_approval to
// every publisher of the item's kind, and published to the item's owner.
// RelayDispatcher posts them as signed JSON to a mail relay, which renders
// and sends the email. AsyncDispatcher wraps any Dispatcher so delivery runs
// in the background; a failed delivery is logged and counted but never
// affects the transition that caused it.
package notify
