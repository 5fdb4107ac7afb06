package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPConfig holds connection parameters for an SFTP target.
type SFTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Root     string

	// KeyFile is an optional PEM private key path, tried before password auth.
	KeyFile string
	// KnownHostsFile verifies the server host key. When empty and
	// InsecureHostKey is false, Connect fails rather than silently trusting
	// the peer.
	KnownHostsFile  string
	InsecureHostKey bool

	Timeout time.Duration
}

// defaultSFTPPort is used when the config leaves Port zero.
const defaultSFTPPort = 22

// SFTP is a Target over the SSH file transfer protocol. The sftp client
// multiplexes requests over one SSH session and is safe for concurrent use,
// so no adapter-level serialization is needed.
type SFTP struct {
	cfg    SFTPConfig
	ssh    *ssh.Client
	client *sftp.Client
}

// NewSFTP creates an unconnected SFTP target.
func NewSFTP(cfg SFTPConfig) *SFTP {
	if cfg.Port == 0 {
		cfg.Port = defaultSFTPPort
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultAdapterTimeout
	}

	return &SFTP{cfg: cfg}
}

func (t *SFTP) Connect(ctx context.Context) error {
	addr := net.JoinHostPort(t.cfg.Host, fmt.Sprint(t.cfg.Port))

	hostKeyCallback, err := t.hostKeyCallback()
	if err != nil {
		return newError("connect", addr, ErrProtocol, err)
	}

	auth, err := t.authMethods()
	if err != nil {
		return newError("connect", addr, ErrProtocol, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            t.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.cfg.Timeout,
	}

	// ssh.Dial has no context variant; dial ourselves so cancellation works.
	dialer := net.Dialer{Timeout: t.cfg.Timeout}

	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return newError("connect", addr, classifyNetError(err), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshCfg)
	if err != nil {
		_ = netConn.Close()
		return newError("connect", addr, classifySFTPError(err), err)
	}

	t.ssh = ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(t.ssh)
	if err != nil {
		_ = t.ssh.Close()
		t.ssh = nil

		return newError("connect", addr, ErrProtocol, err)
	}

	t.client = client

	// The root must exist and be a directory; a missing root is a
	// configuration error, not an empty tree.
	info, err := client.Stat(t.abs(""))
	if err != nil {
		_ = t.Close()
		return newError("connect", t.abs(""), classifySFTPError(err), err)
	}

	if !info.IsDir() {
		_ = t.Close()
		return newError("connect", t.abs(""), ErrProtocol, errNotDirectory(t.abs("")))
	}

	return nil
}

func (t *SFTP) Close() error {
	var errs []error

	if t.client != nil {
		errs = append(errs, t.client.Close())
		t.client = nil
	}

	if t.ssh != nil {
		errs = append(errs, t.ssh.Close())
		t.ssh = nil
	}

	return errors.Join(errs...)
}

func (t *SFTP) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := t.ready(ctx); err != nil {
		return nil, err
	}

	infos, err := t.client.ReadDir(t.abs(dir))
	if err != nil {
		return nil, newError("list", dir, classifySFTPError(err), err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, entryFromInfo(info.Name(), info))
	}

	return entries, nil
}

func (t *SFTP) Stat(ctx context.Context, p string) (Entry, error) {
	if err := t.ready(ctx); err != nil {
		return Entry{}, err
	}

	info, err := t.client.Lstat(t.abs(p))
	if err != nil {
		return Entry{}, newError("stat", p, classifySFTPError(err), err)
	}

	return entryFromInfo(path.Base(p), info), nil
}

func (t *SFTP) OpenRead(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := t.ready(ctx); err != nil {
		return nil, err
	}

	f, err := t.client.Open(t.abs(p))
	if err != nil {
		return nil, newError("read", p, classifySFTPError(err), err)
	}

	return f, nil
}

func (t *SFTP) OpenWrite(ctx context.Context, p string) (io.WriteCloser, error) {
	if err := t.ready(ctx); err != nil {
		return nil, err
	}

	f, err := t.client.Create(t.abs(p))
	if err != nil {
		return nil, newError("write", p, classifySFTPError(err), err)
	}

	return f, nil
}

func (t *SFTP) Mkdir(ctx context.Context, dir string) error {
	if err := t.ready(ctx); err != nil {
		return err
	}

	if err := t.client.Mkdir(t.abs(dir)); err != nil {
		return newError("mkdir", dir, classifySFTPError(err), err)
	}

	return nil
}

func (t *SFTP) Rmdir(ctx context.Context, dir string) error {
	if err := t.ready(ctx); err != nil {
		return err
	}

	if err := t.client.RemoveDirectory(t.abs(dir)); err != nil {
		return newError("rmdir", dir, classifySFTPError(err), err)
	}

	return nil
}

func (t *SFTP) Delete(ctx context.Context, p string) error {
	if err := t.ready(ctx); err != nil {
		return err
	}

	if err := t.client.Remove(t.abs(p)); err != nil {
		return newError("delete", p, classifySFTPError(err), err)
	}

	return nil
}

func (t *SFTP) SetModTime(ctx context.Context, p string, mtime time.Time) error {
	if err := t.ready(ctx); err != nil {
		return err
	}

	if err := t.client.Chtimes(t.abs(p), mtime, mtime); err != nil {
		return newError("settime", p, classifySFTPError(err), err)
	}

	return nil
}

func (t *SFTP) String() string {
	return fmt.Sprintf("sftp://%s%s", t.cfg.Host, t.abs(""))
}

func (t *SFTP) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.client == nil {
		return newError("connect", "", ErrProtocol, errors.New("not connected"))
	}

	return nil
}

func (t *SFTP) abs(rel string) string {
	root := t.cfg.Root
	if root == "" {
		root = "."
	}

	return path.Join(root, rel)
}

func (t *SFTP) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if t.cfg.InsecureHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // opt-in via config
	}

	if t.cfg.KnownHostsFile == "" {
		return nil, errors.New("sftp: no known_hosts file configured (set insecure_host_key to bypass)")
	}

	return knownhosts.New(t.cfg.KnownHostsFile)
}

func (t *SFTP) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if t.cfg.KeyFile != "" {
		pem, err := os.ReadFile(t.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading key file: %w", err)
		}

		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parsing key file: %w", err)
		}

		methods = append(methods, ssh.PublicKeys(signer))
	}

	if t.cfg.Password != "" {
		methods = append(methods, ssh.Password(t.cfg.Password))
	}

	if len(methods) == 0 {
		return nil, errors.New("sftp: no authentication method configured")
	}

	return methods, nil
}

// classifySFTPError maps sftp status errors to sentinel kinds. pkg/sftp
// status errors satisfy os.IsNotExist/os.IsPermission, so the os-level
// classifier covers them.
func classifySFTPError(err error) error {
	if kind := classifyNetError(err); kind != ErrProtocol {
		return kind
	}

	return classifyOSError(err)
}

// classifyNetError detects network-level timeouts.
func classifyNetError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	return ErrProtocol
}
