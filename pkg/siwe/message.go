// Package siwe builds and parses Sign-In with Ethereum (EIP-4361) messages.
package siwe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	headerSuffix = " wants you to sign in with your Ethereum account:"
	timeLayout   = "2006-01-02T15:04:05.000Z"

	// Version is the only message version defined by EIP-4361.
	Version = "1"
)

var ErrMalformed = errors.New("siwe: malformed message")

// Message is the structured form of a sign-in message.
type Message struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime time.Time
}

// String renders the exact text the wallet is asked to sign.
func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.Domain + headerSuffix + "\n")
	b.WriteString(m.Address + "\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n")
	}
	b.WriteString("\n")

	version := m.Version
	if version == "" {
		version = Version
	}

	fmt.Fprintf(&b, "URI: %s\n", m.URI)
	fmt.Fprintf(&b, "Version: %s\n", version)
	fmt.Fprintf(&b, "Chain ID: %d\n", m.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", m.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", m.IssuedAt.UTC().Format(timeLayout))
	if !m.ExpirationTime.IsZero() {
		fmt.Fprintf(&b, "\nExpiration Time: %s", m.ExpirationTime.UTC().Format(timeLayout))
	}
	return b.String()
}

// Parse reads a message produced by String. It is strict about layout since
// the server compares the signed text byte for byte anyway; its job is only
// to pull out the fields needed to find the stored challenge.
func Parse(text string) (Message, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 8 {
		return Message{}, fmt.Errorf("%w: too few lines", ErrMalformed)
	}

	domain, ok := strings.CutSuffix(lines[0], headerSuffix)
	if !ok || domain == "" {
		return Message{}, fmt.Errorf("%w: header", ErrMalformed)
	}

	m := Message{Domain: domain, Address: lines[1]}
	if lines[2] != "" {
		return Message{}, fmt.Errorf("%w: expected blank line after address", ErrMalformed)
	}

	// Optional statement followed by a blank line.
	rest := lines[3:]
	if rest[0] != "" {
		m.Statement = rest[0]
		rest = rest[1:]
	}
	if len(rest) == 0 || rest[0] != "" {
		return Message{}, fmt.Errorf("%w: expected blank line before fields", ErrMalformed)
	}
	rest = rest[1:]

	fields := make(map[string]string, len(rest))
	for _, line := range rest {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return Message{}, fmt.Errorf("%w: field %q", ErrMalformed, line)
		}
		if _, dup := fields[key]; dup {
			return Message{}, fmt.Errorf("%w: duplicate field %q", ErrMalformed, key)
		}
		fields[key] = value
	}

	m.URI = fields["URI"]
	m.Version = fields["Version"]
	m.Nonce = fields["Nonce"]
	if m.URI == "" || m.Version != Version || m.Nonce == "" {
		return Message{}, fmt.Errorf("%w: missing required field", ErrMalformed)
	}

	chainID, err := strconv.ParseInt(fields["Chain ID"], 10, 64)
	if err != nil {
		return Message{}, fmt.Errorf("%w: chain id", ErrMalformed)
	}
	m.ChainID = chainID

	if m.IssuedAt, err = time.Parse(time.RFC3339Nano, fields["Issued At"]); err != nil {
		return Message{}, fmt.Errorf("%w: issued at", ErrMalformed)
	}
	if v, ok := fields["Expiration Time"]; ok {
		if m.ExpirationTime, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return Message{}, fmt.Errorf("%w: expiration time", ErrMalformed)
		}
	}

	return m, nil
}
