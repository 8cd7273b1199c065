package sshsession

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// AuthMethod represents the SSH authentication method to use.
type AuthMethod string

const (
	// AuthMethodPassword uses password authentication (default when Password is set).
	AuthMethodPassword AuthMethod = "password"
	// AuthMethodPrivateKey uses SSH private key authentication.
	AuthMethodPrivateKey AuthMethod = "private_key"
	// AuthMethodCertificate uses SSH certificate authentication.
	AuthMethodCertificate AuthMethod = "certificate"
)

// Config holds the connection parameters for one session.
// It is read once by Open and never mutated afterwards.
type Config struct {
	// Host is the target SSH server hostname or IP address.
	Host string

	// Port is the SSH port (default 22).
	Port int

	// User is the SSH username.
	User string

	// Password is the credential for password authentication.
	Password string

	// AuthMethod specifies which authentication method to use.
	// If not set, it is inferred from the provided credentials.
	AuthMethod AuthMethod

	// PrivateKey is the SSH private key content (PEM encoded).
	// Mutually exclusive with KeyPath.
	PrivateKey string

	// KeyPath is the path to the SSH private key file.
	// Mutually exclusive with PrivateKey.
	KeyPath string

	// Certificate is the SSH certificate content.
	// Used with PrivateKey or KeyPath for certificate authentication.
	Certificate string

	// CertificatePath is the path to the SSH certificate file.
	CertificatePath string

	// DialTimeout bounds the TCP connect and handshake (default 30s).
	DialTimeout time.Duration

	// KnownHostsFile is the path to a known_hosts file for host key verification.
	// If not set, defaults to ~/.ssh/known_hosts if it exists.
	KnownHostsFile string

	// InsecureIgnoreHostKey skips host key verification.
	// WARNING: This is insecure and should only be used for testing.
	InsecureIgnoreHostKey bool

	// Logger receives session logs. If nil, a process-wide default logger
	// writing to stderr at debug level is used.
	Logger *logrus.Logger
}

// WithDefaults returns a copy of the config with default values applied.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 30 * time.Second
	}
	return c
}

// Validate checks the fields a session cannot be opened without.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user must not be empty")
	}
	return nil
}

// addr returns the dial address for the config.
func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ExpandPath expands ~ to home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
