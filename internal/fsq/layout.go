package fsq

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Top-level directories under the messages root.
const (
	DirToSend   = "to-send"
	DirReceived = "received"
)

// File extensions used by the protocol, including the leading dot.
const (
	ExtMessage    = ".signalmessage"
	ExtAttachment = ".signalattachment"
	ExtReply      = ".signalreply"
	ExtLock       = ".lock"
)

// Kind identifies the payload carried by an outgoing file.
type Kind int

const (
	KindUnknown Kind = iota
	KindMessage
	KindAttachment
	KindReply
)

// Ext returns the file extension for k, or "" for KindUnknown.
func (k Kind) Ext() string {
	switch k {
	case KindMessage:
		return ExtMessage
	case KindAttachment:
		return ExtAttachment
	case KindReply:
		return ExtReply
	default:
		return ""
	}
}

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindAttachment:
		return "attachment"
	case KindReply:
		return "reply"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name so JSON output stays readable.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for _, kind := range []Kind{KindMessage, KindAttachment, KindReply} {
		if string(text) == kind.String() {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown kind %q", text)
}

// KindForExt maps a file extension back to its Kind.
func KindForExt(ext string) Kind {
	switch ext {
	case ExtMessage:
		return KindMessage
	case ExtAttachment:
		return KindAttachment
	case ExtReply:
		return KindReply
	default:
		return KindUnknown
	}
}

// clientRe matches client identifiers: handles and E.164 phone numbers.
var clientRe = regexp.MustCompile(`^[A-Za-z0-9+_.@-]+$`)

// ValidateClient returns an error if client cannot be used as a single
// directory name under to-send/ and received/.
func ValidateClient(client string) error {
	if client == "" || strings.TrimSpace(client) == "" {
		return fmt.Errorf("client id is empty")
	}
	if client == "." || client == ".." || strings.Contains(client, "..") ||
		strings.Contains(client, "/") || strings.Contains(client, string(filepath.Separator)) {
		return fmt.Errorf("client id contains path traversal: %q", client)
	}
	if strings.HasPrefix(client, ".") {
		return fmt.Errorf("client id must not start with a dot: %q", client)
	}
	if !clientRe.MatchString(client) {
		return fmt.Errorf("client id must match [A-Za-z0-9+_.@-]+: %q", client)
	}
	return nil
}

// Path helpers for the two mailbox directories.

func ToSendDir(root, client string) string {
	return filepath.Join(root, DirToSend, client)
}

func ReceivedDir(root, client string) string {
	return filepath.Join(root, DirReceived, client)
}

// PayloadName returns "<stem><ext>" for kind.
func PayloadName(stem string, kind Kind) string {
	return stem + kind.Ext()
}

// MarkerName returns "<stem>.lock".
func MarkerName(stem string) string {
	return stem + ExtLock
}

// SplitName splits a file name into stem and extension at the last dot.
// "1700000000000.signalmessage" -> ("1700000000000", ".signalmessage").
// A name without a dot has an empty extension.
func SplitName(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}
