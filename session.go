package sshsession

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SessionInterface defines the operations of a remote session.
// This allows for mocking in tests.
type SessionInterface interface {
	// Run executes a command on the remote host and returns its stdout.
	Run(ctx context.Context, command string) (string, error)
	// RunWithTimeout executes a command bounded by the given timeout.
	RunWithTimeout(command string, timeout time.Duration) (string, error)
	// Upload streams a local file to the remote host.
	Upload(ctx context.Context, localPath, remotePath string) error
	// Download streams a remote file to the local host.
	Download(ctx context.Context, remotePath, localPath string) error
	// Close releases the transport. Safe to call more than once.
	Close() error
}

type sessionState int

const (
	stateUnopened sessionState = iota
	stateOpen
	stateClosed
)

// Session holds one authenticated SSH transport to a remote host. Command
// execution and file transfers each open a fresh channel over that transport.
//
// A Session is not safe for concurrent use. Callers that need parallel
// remote operations must open independent sessions, one transport each
// (see SessionPool).
type Session struct {
	config Config
	logger *logrus.Logger
	client *ssh.Client
	state  sessionState
}

// Ensure Session implements SessionInterface.
var _ SessionInterface = (*Session)(nil)

// Open establishes the transport and authenticates with the configured
// credentials. On any failure every resource acquired so far is released
// and a *ConnectError is returned; a half-open session never escapes.
//
// The caller owns the returned session and must Close it, typically:
//
//	sess, err := sshsession.Open(config)
//	if err != nil {
//		return err
//	}
//	defer sess.Close()
func Open(config Config) (*Session, error) {
	config = config.WithDefaults()

	logger := config.Logger
	if logger == nil {
		logger = defaultLogger()
	}

	if err := config.Validate(); err != nil {
		return nil, &ConnectError{Addr: config.addr(), Err: err}
	}

	authMethods, err := buildAuthMethods(config)
	if err != nil {
		return nil, &ConnectError{Addr: config.addr(), Err: err}
	}
	if len(authMethods) == 0 {
		return nil, &ConnectError{Addr: config.addr(), Err: errors.New("no authentication method configured")}
	}

	hostKeyCallback, err := buildHostKeyCallback(config, logger)
	if err != nil {
		return nil, &ConnectError{Addr: config.addr(), Err: fmt.Errorf("host key verification: %w", err)}
	}

	clientConfig := &ssh.ClientConfig{
		User:            config.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.DialTimeout,
	}

	client, err := ssh.Dial("tcp", config.addr(), clientConfig)
	if err != nil {
		return nil, &ConnectError{Addr: config.addr(), Err: err}
	}

	return &Session{
		config: config,
		logger: logger,
		client: client,
		state:  stateOpen,
	}, nil
}

// Run executes command on the remote host over a new session channel and
// returns the fully drained stdout decoded as text. Standard error and the
// remote exit status are deliberately not surfaced; callers needing
// success/failure semantics of the remote command must parse the output.
//
// Run blocks until the remote process terminates, the channel closes, or the
// context is done. A context deadline produces an *ExecError satisfying
// errors.Is(err, ErrTimeout), and the command channel is abandoned.
func (s *Session) Run(ctx context.Context, command string) (string, error) {
	if s.state != stateOpen {
		return "", ErrNotConnected
	}

	channel, err := s.client.NewSession()
	if err != nil {
		return "", &ExecError{Command: command, Err: err}
	}

	var stdout bytes.Buffer
	channel.Stdout = &stdout
	channel.Stderr = io.Discard

	s.logger.Infof("execute command: %s", command)

	done := make(chan error, 1)
	go func() {
		done <- channel.Run(command)
	}()

	select {
	case <-ctx.Done():
		// Abandon the channel rather than leave it dangling; the transport
		// itself stays usable.
		_ = channel.Close()
		cause := ctx.Err()
		if errors.Is(cause, context.DeadlineExceeded) {
			cause = fmt.Errorf("%w: %v", ErrTimeout, cause)
		}
		return "", &ExecError{Command: command, Err: cause}
	case err := <-done:
		_ = channel.Close()
		if err != nil && !isExitError(err) {
			return "", &ExecError{Command: command, Err: err}
		}
	}

	output := stdout.String()
	s.logger.Infof("execute result: %s", output)
	return output, nil
}

// RunWithTimeout is Run with an explicit per-command timeout. A zero or
// negative timeout means no bound.
func (s *Session) RunWithTimeout(command string, timeout time.Duration) (string, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.Run(ctx, command)
}

// isExitError reports whether err only describes how the remote process
// exited. A non-zero exit status is not a channel failure.
func isExitError(err error) bool {
	var exitErr *ssh.ExitError
	var missingErr *ssh.ExitMissingError
	return errors.As(err, &exitErr) || errors.As(err, &missingErr)
}

// Upload opens a file transfer channel over the existing transport and
// streams the full contents of localPath to remotePath, overwriting any
// existing remote file. The remote parent directory must already exist.
func (s *Session) Upload(ctx context.Context, localPath, remotePath string) error {
	if s.state != stateOpen {
		return ErrNotConnected
	}
	transferErr := func(err error) error {
		return &TransferError{Op: "upload", Src: localPath, Dst: remotePath, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return transferErr(err)
	}

	local, err := os.Open(localPath)
	if err != nil {
		return transferErr(err)
	}
	defer local.Close()

	sftpClient, err := sftp.NewClient(s.client)
	if err != nil {
		return transferErr(err)
	}
	defer sftpClient.Close()

	remote, err := sftpClient.Create(remotePath)
	if err != nil {
		return transferErr(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(remote, local)
		if cerr := remote.Close(); err == nil {
			err = cerr
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return transferErr(ctx.Err())
	case err := <-done:
		if err != nil {
			return transferErr(err)
		}
	}
	return nil
}

// Download is symmetric to Upload: it streams the full contents of
// remotePath to localPath, overwriting any existing local file.
func (s *Session) Download(ctx context.Context, remotePath, localPath string) error {
	if s.state != stateOpen {
		return ErrNotConnected
	}
	transferErr := func(err error) error {
		return &TransferError{Op: "download", Src: remotePath, Dst: localPath, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return transferErr(err)
	}

	sftpClient, err := sftp.NewClient(s.client)
	if err != nil {
		return transferErr(err)
	}
	defer sftpClient.Close()

	remote, err := sftpClient.Open(remotePath)
	if err != nil {
		return transferErr(err)
	}
	defer remote.Close()

	local, err := os.Create(localPath)
	if err != nil {
		return transferErr(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(local, remote)
		if cerr := local.Close(); err == nil {
			err = cerr
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return transferErr(ctx.Err())
	case err := <-done:
		if err != nil {
			return transferErr(err)
		}
	}
	return nil
}

// Close releases the transport. It is idempotent and never returns a
// non-nil error: cleanup failures are logged at debug level so they cannot
// mask the result of the operation that triggered the close.
func (s *Session) Close() error {
	if s.state == stateClosed {
		return nil
	}
	s.state = stateClosed

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Debugf("closing transport to %s: %v", s.config.addr(), err)
		}
		s.client = nil
	}
	return nil
}

// Alive reports whether the transport still answers a keepalive request.
func (s *Session) Alive() bool {
	if s.state != stateOpen {
		return false
	}
	_, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// mkdirRemote creates remotePath and any missing parents over a fresh file
// transfer channel. Session.Upload deliberately does not do this; Mirror
// does, because materializing a tree is its job.
func (s *Session) mkdirRemote(remotePath string) error {
	if s.state != stateOpen {
		return ErrNotConnected
	}

	sftpClient, err := sftp.NewClient(s.client)
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	return sftpClient.MkdirAll(remotePath)
}

// statRemote returns file information for remotePath.
func (s *Session) statRemote(remotePath string) (os.FileInfo, error) {
	if s.state != stateOpen {
		return nil, ErrNotConnected
	}

	sftpClient, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	return sftpClient.Stat(remotePath)
}

// Helper functions

func buildHostKeyCallback(config Config, logger *logrus.Logger) (ssh.HostKeyCallback, error) {
	if config.InsecureIgnoreHostKey {
		logger.Warnf("host key verification disabled for %s - this is insecure", config.addr())
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if config.KnownHostsFile != "" {
		expandedPath := ExpandPath(config.KnownHostsFile)
		callback, err := knownhosts.New(expandedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts file %s: %w", expandedPath, err)
		}
		return callback, nil
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		defaultKnownHosts := filepath.Join(homeDir, ".ssh", "known_hosts")
		if _, err := os.Stat(defaultKnownHosts); err == nil {
			callback, err := knownhosts.New(defaultKnownHosts)
			if err == nil {
				return callback, nil
			}
			logger.Warnf("could not parse known_hosts file %s: %v", defaultKnownHosts, err)
		}
	}

	logger.Warnf("no known_hosts file found for %s - host key verification disabled", config.addr())
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		return nil
	}, nil
}

func buildAuthMethods(config Config) ([]ssh.AuthMethod, error) {
	var authMethods []ssh.AuthMethod

	authMethod := config.AuthMethod
	if authMethod == "" {
		authMethod = inferAuthMethod(config)
	}

	switch authMethod {
	case AuthMethodPassword:
		if config.Password == "" {
			return nil, fmt.Errorf("password authentication requires password to be set")
		}
		authMethods = append(authMethods, ssh.Password(config.Password))

	case AuthMethodCertificate:
		certAuth, err := buildCertificateAuth(config)
		if err != nil {
			return nil, fmt.Errorf("certificate authentication failed: %w", err)
		}
		authMethods = append(authMethods, certAuth)

	case AuthMethodPrivateKey:
		keyAuth, err := buildPrivateKeyAuth(config)
		if err != nil {
			return nil, err
		}
		authMethods = append(authMethods, keyAuth)

	default:
		return nil, fmt.Errorf("unknown auth method %q", authMethod)
	}

	return authMethods, nil
}

func inferAuthMethod(config Config) AuthMethod {
	if config.Password != "" {
		return AuthMethodPassword
	}
	if config.Certificate != "" || config.CertificatePath != "" {
		return AuthMethodCertificate
	}
	return AuthMethodPrivateKey
}

func buildPrivateKeyAuth(config Config) (ssh.AuthMethod, error) {
	signer, err := loadSigner(config)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

func loadSigner(config Config) (ssh.Signer, error) {
	var keyData []byte
	var err error

	if config.PrivateKey != "" {
		keyData = []byte(config.PrivateKey)
	} else if config.KeyPath != "" {
		keyData, err = os.ReadFile(ExpandPath(config.KeyPath))
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key file: %w", err)
		}
	} else {
		return nil, fmt.Errorf("no SSH private key provided (set PrivateKey or KeyPath)")
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH private key: %w", err)
	}
	return signer, nil
}

func buildCertificateAuth(config Config) (ssh.AuthMethod, error) {
	signer, err := loadSigner(config)
	if err != nil {
		return nil, err
	}

	var certData []byte
	if config.Certificate != "" {
		certData = []byte(config.Certificate)
	} else if config.CertificatePath != "" {
		certData, err = os.ReadFile(ExpandPath(config.CertificatePath))
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate file: %w", err)
		}
	} else {
		return nil, fmt.Errorf("certificate auth requires certificate")
	}

	pubKey, _, _, _, err := ssh.ParseAuthorizedKey(certData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	cert, ok := pubKey.(*ssh.Certificate)
	if !ok {
		return nil, fmt.Errorf("provided file is not an SSH certificate")
	}

	certSigner, err := ssh.NewCertSigner(cert, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate signer: %w", err)
	}

	return ssh.PublicKeys(certSigner), nil
}
