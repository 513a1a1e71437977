// Package mailbox implements the filesystem mailbox shared between a producer
// and a bridge daemon that talks to the messaging client.
//
// A Mailbox is rooted at a messages folder and partitioned by client id:
//
//	<root>/to-send/<client>/<ts>.signalmessage     outgoing text
//	<root>/to-send/<client>/<ts>.signalattachment  outgoing attachment path
//	<root>/to-send/<client>/<ts>.signalreply       "<quoted ts>\n<reply text>"
//	<root>/received/<client>/<ts>.signalmessage    incoming text
//	<root>/{to-send,received}/<client>/<ts>.lock   transient claim marker
//
// # Outgoing
//
// EnqueueMessage, EnqueueAttachment and EnqueueReply claim a millisecond stem by
// creating "<ts>.lock" exclusively, create the payload exclusively, then remove
// the marker. Whoever picks files up must ignore a payload while its marker
// exists.
//
// # Incoming
//
// DrainIncoming claims each ".signalmessage" entry, reads it, optionally checks
// its first line against a prefix identifier, then deletes the payload and the
// marker. Entries already claimed by someone else, or addressed to another
// prefix, are left in place. Drain returns the same work as a per-entry report.
//
// The Mailbox keeps no state between calls and is safe to use from several
// goroutines and processes at once; all exclusion happens in storage.
package mailbox
