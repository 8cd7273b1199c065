package sshsession

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	gossh "golang.org/x/crypto/ssh"
)

const (
	testUser     = "testuser"
	testPassword = "testpass"
)

// quietLogger returns a logger that keeps test output clean.
func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// testServer is a minimal in-process SSH server speaking just enough of the
// protocol for session tests: password auth, exec requests answered by a
// tiny command interpreter, and the sftp subsystem served against the local
// filesystem.
type testServer struct {
	listener net.Listener
	port     int
}

func startTestServer(t testing.TB) *testServer {
	t.Helper()

	hostKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	signer, err := gossh.NewSignerFromKey(hostKey)
	if err != nil {
		t.Fatalf("failed to create host signer: %v", err)
	}

	config := &gossh.ServerConfig{
		PasswordCallback: func(conn gossh.ConnMetadata, password []byte) (*gossh.Permissions, error) {
			if conn.User() == testUser && string(password) == testPassword {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid credentials for %s", conn.User())
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	s := &testServer{
		listener: listener,
		port:     listener.Addr().(*net.TCPAddr).Port,
	}

	go s.acceptLoop(config)
	t.Cleanup(func() { _ = listener.Close() })

	return s
}

// config returns a session config pointing at the test server.
func (s *testServer) config() Config {
	return Config{
		Host:                  "127.0.0.1",
		Port:                  s.port,
		User:                  testUser,
		Password:              testPassword,
		InsecureIgnoreHostKey: true,
		DialTimeout:           5 * time.Second,
		Logger:                quietLogger(),
	}
}

func (s *testServer) acceptLoop(config *gossh.ServerConfig) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn, config)
	}
}

func (s *testServer) handleConn(conn net.Conn, config *gossh.ServerConfig) {
	defer conn.Close()

	_, chans, reqs, err := gossh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	go gossh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(gossh.UnknownChannelType, "")
			continue
		}
		channel, requests, err := nc.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(channel, requests)
	}
}

func (s *testServer) handleSession(channel gossh.Channel, requests <-chan *gossh.Request) {
	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := gossh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go func(command string) {
				status := runTestCommand(channel, command)
				_, _ = channel.SendRequest("exit-status", false, gossh.Marshal(&exitStatusMsg{Status: status}))
				_ = channel.Close()
			}(payload.Command)

		case "subsystem":
			// Subsystem payload is "<length=4>sftp".
			if len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp" {
				_ = req.Reply(true, nil)
				go func() {
					server, err := sftp.NewServer(channel)
					if err == nil {
						_ = server.Serve()
					}
					_ = channel.Close()
				}()
			} else {
				_ = req.Reply(false, nil)
			}

		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

type exitStatusMsg struct {
	Status uint32
}

// runTestCommand interprets the handful of commands the tests need. Running
// real shell commands would tie the tests to the host environment.
func runTestCommand(channel gossh.Channel, command string) uint32 {
	name, rest, _ := strings.Cut(command, " ")
	switch name {
	case "echo":
		fmt.Fprintf(channel, "%s\n", rest)
		return 0
	case "sleep":
		seconds, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			fmt.Fprintf(channel.Stderr(), "sleep: invalid interval %q\n", rest)
			return 1
		}
		time.Sleep(time.Duration(seconds * float64(time.Second)))
		return 0
	case "stderr":
		fmt.Fprintf(channel.Stderr(), "%s\n", rest)
		return 0
	case "false":
		return 1
	default:
		fmt.Fprintf(channel.Stderr(), "%s: command not found\n", name)
		return 127
	}
}

// generateTestRSAKey creates a test RSA private key and returns both
// PEM-encoded key content and a path to a temp file containing the key.
func generateTestRSAKey(t testing.TB) (string, string) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}

	privateKeyBytes := x509.MarshalPKCS1PrivateKey(privateKey)
	privateKeyPEM := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: privateKeyBytes,
	}))

	tmpDir := t.TempDir()
	keyPath := filepath.Join(tmpDir, "test_key")
	if err := os.WriteFile(keyPath, []byte(privateKeyPEM), 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	return privateKeyPEM, keyPath
}

// createTempFile creates a temporary file with the given content.
func createTempFile(t testing.TB, content []byte) string {
	t.Helper()

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test_file")
	if err := os.WriteFile(tmpFile, content, 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	return tmpFile
}

// createTestTree creates a directory structure with files for testing.
// files is a map of relative path -> content.
func createTestTree(t testing.TB, files map[string][]byte) string {
	t.Helper()

	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("failed to create dir for %s: %v", rel, err)
		}
		if err := os.WriteFile(full, content, 0644); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
	return root
}
