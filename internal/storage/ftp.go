package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/klg/videobooth-api/internal/artifact"
)

// SecureMode selects how the FTP control connection is protected.
type SecureMode string

const (
	// SecureNone uses a plain connection.
	SecureNone SecureMode = "none"
	// SecureExplicit upgrades the connection with AUTH TLS.
	SecureExplicit SecureMode = "explicit"
	// SecureImplicit connects with TLS from the first byte.
	SecureImplicit SecureMode = "implicit"
)

// ParseSecureMode maps the FTP_SECURE setting to a SecureMode.
// "implicit" selects implicit TLS, "true" explicit TLS; anything else,
// including an empty value, disables TLS.
func ParseSecureMode(value string) SecureMode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "implicit":
		return SecureImplicit
	case "true":
		return SecureExplicit
	default:
		return SecureNone
	}
}

// NormalizeRemotePath converts backslashes to slashes and strips leading and
// trailing slashes. The root path normalizes to "".
func NormalizeRemotePath(value string) string {
	sanitized := strings.TrimSpace(strings.ReplaceAll(value, `\`, "/"))
	return strings.Trim(sanitized, "/")
}

// DefaultFTPPort is used when no valid port is configured.
const DefaultFTPPort = 21

// FTPConfig holds the configuration for the FTP remote.
type FTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// RemotePath is the directory files are stored in, relative to the login
	// directory. Normalized with NormalizeRemotePath.
	RemotePath string
	Secure     SecureMode
	// Timeout bounds the dial and every read or write on the control and
	// data connections. Zero leaves reads and writes unbounded.
	Timeout time.Duration
	// Debug routes the FTP protocol trace to the logger at debug level.
	Debug bool
}

// ftpConn is the subset of *ftp.ServerConn used by FTPRemote.
type ftpConn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

// dialFunc opens an FTP control connection.
type dialFunc func(addr string, opts ...ftp.DialOption) (ftpConn, error)

func dialFTP(addr string, opts ...ftp.DialOption) (ftpConn, error) {
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Compile-time check that FTPRemote implements Remote.
var _ Remote = (*FTPRemote)(nil)

// FTPRemote uploads artifacts to an FTP server. A new connection is opened
// for every Store call and closed before it returns.
type FTPRemote struct {
	cfg    FTPConfig
	dial   dialFunc
	logger *slog.Logger
}

// NewFTPRemote creates a new FTPRemote.
func NewFTPRemote(cfg FTPConfig, logger *slog.Logger) *FTPRemote {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultFTPPort
	}
	if cfg.Secure == "" {
		cfg.Secure = SecureNone
	}
	cfg.RemotePath = NormalizeRemotePath(cfg.RemotePath)
	return &FTPRemote{
		cfg:    cfg,
		dial:   dialFTP,
		logger: logger,
	}
}

// Backend returns artifact.BackendFTP.
func (f *FTPRemote) Backend() artifact.Backend {
	return artifact.BackendFTP
}

// RemotePath returns the normalized remote directory.
func (f *FTPRemote) RemotePath() string {
	return f.cfg.RemotePath
}

// Store connects, logs in, ensures the remote directory exists and uploads
// the local file under filename. The connection is closed on every path.
func (f *FTPRemote) Store(ctx context.Context, localPath, filename string) (string, error) {
	addr := net.JoinHostPort(f.cfg.Host, strconv.Itoa(f.cfg.Port))

	conn, err := f.dial(addr, f.dialOptions(ctx)...)
	if err != nil {
		return "", fmt.Errorf("ftp connect %s: %w", addr, err)
	}
	defer func() {
		if err := conn.Quit(); err != nil {
			f.logger.Debug("ftp quit failed",
				slog.String("host", f.cfg.Host),
				slog.String("error", err.Error()),
			)
		}
	}()

	if err := conn.Login(f.cfg.User, f.cfg.Password); err != nil {
		return "", fmt.Errorf("ftp login: %w", err)
	}

	if f.cfg.RemotePath != "" {
		if err := ensureDir(conn, f.cfg.RemotePath); err != nil {
			return "", err
		}
	}

	file, err := os.Open(localPath) // #nosec G304 - path comes from the staging directory
	if err != nil {
		return "", fmt.Errorf("open local file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := conn.Stor(filename, file); err != nil {
		return "", fmt.Errorf("ftp upload %s: %w", filename, err)
	}

	return f.cfg.RemotePath, nil
}

func (f *FTPRemote) dialOptions(ctx context.Context) []ftp.DialOption {
	tlsConfig := &tls.Config{
		ServerName: f.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
	d := &deadlineDialer{
		ctx:       ctx,
		timeout:   f.cfg.Timeout,
		secure:    f.cfg.Secure,
		tlsConfig: tlsConfig,
	}

	// With a dial func set the library leaves TLS wrapping to it, but still
	// needs the config for AUTH TLS and PROT P.
	opts := []ftp.DialOption{ftp.DialWithDialFunc(d.dial)}
	switch f.cfg.Secure {
	case SecureImplicit:
		opts = append(opts, ftp.DialWithTLS(tlsConfig))
	case SecureExplicit:
		opts = append(opts, ftp.DialWithExplicitTLS(tlsConfig))
	}

	if f.cfg.Debug {
		opts = append(opts, ftp.DialWithDebugOutput(&logWriter{logger: f.logger}))
	}
	return opts
}

// deadlineDialer opens the control and data connections of one session.
// The first connection dialed is the control connection.
type deadlineDialer struct {
	ctx       context.Context
	timeout   time.Duration
	secure    SecureMode
	tlsConfig *tls.Config
	dialed    bool
}

func (d *deadlineDialer) dial(network, address string) (net.Conn, error) {
	dialTimeout := d.timeout
	if dialTimeout <= 0 {
		dialTimeout = ftp.DefaultDialTimeout
	}
	nd := net.Dialer{Timeout: dialTimeout}
	raw, err := nd.DialContext(d.ctx, network, address)
	if err != nil {
		return nil, err
	}

	var conn net.Conn = raw
	if d.timeout > 0 {
		conn = &deadlineConn{Conn: raw, timeout: d.timeout}
	}

	control := !d.dialed
	d.dialed = true

	// Implicit TLS wraps every connection. Explicit TLS upgrades the control
	// connection after AUTH TLS, so only data connections are wrapped here.
	if d.secure == SecureImplicit || (d.secure == SecureExplicit && !control) {
		return tls.Client(conn, d.tlsConfig), nil
	}
	return conn, nil
}

// deadlineConn pushes the deadline forward before every read and write, so
// a peer that stops responding fails the call after timeout.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}

// ensureDir walks into remotePath segment by segment, creating any segment
// that does not exist yet.
func ensureDir(conn ftpConn, remotePath string) error {
	for _, segment := range strings.Split(remotePath, "/") {
		if segment == "" {
			continue
		}
		if err := conn.ChangeDir(segment); err == nil {
			continue
		}
		if err := conn.MakeDir(segment); err != nil {
			return fmt.Errorf("ftp mkdir %s: %w", segment, err)
		}
		if err := conn.ChangeDir(segment); err != nil {
			return fmt.Errorf("ftp cd %s: %w", segment, err)
		}
	}
	return nil
}

// logWriter forwards the FTP protocol trace to a logger, one record per line.
type logWriter struct {
	logger *slog.Logger
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\r\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		w.logger.Debug("ftp", slog.String("line", string(bytes.TrimRight(line, "\r"))))
	}
	return len(p), nil
}
