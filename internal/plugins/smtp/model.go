// Package smtp sends the order log's notification emails over SMTP. The
// transport settings come from the environment; the password never leaves
// this package.
package smtp

// Encryption modes.
const (
	EncryptionStartTLS = "starttls"
	EncryptionSSL      = "ssl"
	EncryptionNone     = "none"
)

// Settings holds the SMTP transport configuration.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password string

	// Encryption is "starttls" (default), "ssl" or "none".
	Encryption string

	// FromName is the display name used when a sender is a bare address.
	FromName string
}

// Configured reports whether a host is set.
func (s Settings) Configured() bool {
	return s.Host != ""
}
