package target

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPConfig holds connection parameters for an FTP or FTPS target.
type FTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Root     string // initial remote directory, absolute or login-relative

	// ExplicitTLS upgrades the control connection with AUTH TLS (FTPS).
	ExplicitTLS bool
	// TLSInsecure skips certificate verification. Useful against appliances
	// with self-signed certificates; off by default.
	TLSInsecure bool

	// Timeout bounds dialing and each protocol round-trip.
	Timeout time.Duration
}

// defaultFTPPort is used when the config leaves Port zero.
const defaultFTPPort = 21

// defaultAdapterTimeout bounds adapter calls when the config leaves
// Timeout zero.
const defaultAdapterTimeout = 30 * time.Second

// FTP is a Target speaking FTP or FTPS via a single control connection.
//
// A lone FTP connection allows one transfer at a time, so every operation
// holds an internal mutex; transfers keep it held until the data stream is
// closed. The engine may still call concurrently — calls queue up here.
type FTP struct {
	cfg FTPConfig

	mu   sync.Mutex
	conn *ftp.ServerConn
}

// NewFTP creates an unconnected FTP target.
func NewFTP(cfg FTPConfig) *FTP {
	if cfg.Port == 0 {
		cfg.Port = defaultFTPPort
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultAdapterTimeout
	}

	return &FTP{cfg: cfg}
}

func (t *FTP) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	addr := net.JoinHostPort(t.cfg.Host, fmt.Sprint(t.cfg.Port))

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(t.cfg.Timeout),
	}

	if t.cfg.ExplicitTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         t.cfg.Host,
			InsecureSkipVerify: t.cfg.TLSInsecure, //nolint:gosec // opt-in via config
		}))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return newError("connect", addr, classifyFTPError(err), err)
	}

	user := t.cfg.User
	if user == "" {
		user = "anonymous"
	}

	if err := conn.Login(user, t.cfg.Password); err != nil {
		_ = conn.Quit()
		return newError("connect", addr, classifyFTPError(err), err)
	}

	// The root must exist. A missing root is a configuration error, not an
	// empty tree; all operation paths stay absolute, so the cwd itself is
	// irrelevant.
	if err := conn.ChangeDir(t.abs("")); err != nil {
		_ = conn.Quit()
		return newError("connect", t.abs(""), classifyFTPError(err), err)
	}

	t.conn = conn

	return nil
}

func (t *FTP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}

	err := t.conn.Quit()
	t.conn = nil

	if err != nil {
		return newError("close", "", classifyFTPError(err), err)
	}

	return nil
}

func (t *FTP) List(ctx context.Context, dir string) ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ready(ctx); err != nil {
		return nil, err
	}

	raw, err := t.conn.List(t.abs(dir))
	if err != nil {
		return nil, newError("list", dir, classifyFTPError(err), err)
	}

	entries := make([]Entry, 0, len(raw))

	for _, fe := range raw {
		if fe.Name == "." || fe.Name == ".." {
			continue
		}

		entries = append(entries, entryFromFTP(fe))
	}

	return entries, nil
}

func (t *FTP) Stat(ctx context.Context, p string) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ready(ctx); err != nil {
		return Entry{}, err
	}

	// MLST when the server supports it; otherwise scan the parent listing.
	if fe, err := t.conn.GetEntry(t.abs(p)); err == nil {
		e := entryFromFTP(fe)
		e.Name = path.Base(p)

		return e, nil
	}

	raw, err := t.conn.List(t.abs(path.Dir(p)))
	if err != nil {
		return Entry{}, newError("stat", p, classifyFTPError(err), err)
	}

	name := path.Base(p)
	for _, fe := range raw {
		if fe.Name == name {
			return entryFromFTP(fe), nil
		}
	}

	return Entry{}, newError("stat", p, ErrNotFound, errors.New("no such entry in parent listing"))
}

func (t *FTP) OpenRead(ctx context.Context, p string) (io.ReadCloser, error) {
	t.mu.Lock()

	if err := t.ready(ctx); err != nil {
		t.mu.Unlock()
		return nil, err
	}

	resp, err := t.conn.Retr(t.abs(p))
	if err != nil {
		t.mu.Unlock()
		return nil, newError("read", p, classifyFTPError(err), err)
	}

	// The data connection is busy until the response is closed; the mutex
	// stays held so no other operation can clobber it.
	return &ftpReader{resp: resp, mu: &t.mu}, nil
}

func (t *FTP) OpenWrite(ctx context.Context, p string) (io.WriteCloser, error) {
	t.mu.Lock()

	if err := t.ready(ctx); err != nil {
		t.mu.Unlock()
		return nil, err
	}

	pr, pw := io.Pipe()
	w := &ftpWriter{pw: pw, mu: &t.mu, done: make(chan error, 1)}

	go func() {
		err := t.conn.Stor(t.abs(p), pr)
		// Unblock the writer if Stor bailed before draining the pipe.
		_ = pr.CloseWithError(err)

		if err != nil {
			w.done <- newError("write", p, classifyFTPError(err), err)
		} else {
			w.done <- nil
		}
	}()

	return w, nil
}

func (t *FTP) Mkdir(ctx context.Context, dir string) error {
	return t.simpleOp(ctx, "mkdir", dir, func() error { return t.conn.MakeDir(t.abs(dir)) })
}

func (t *FTP) Rmdir(ctx context.Context, dir string) error {
	return t.simpleOp(ctx, "rmdir", dir, func() error { return t.conn.RemoveDir(t.abs(dir)) })
}

func (t *FTP) Delete(ctx context.Context, p string) error {
	return t.simpleOp(ctx, "delete", p, func() error { return t.conn.Delete(t.abs(p)) })
}

func (t *FTP) SetModTime(ctx context.Context, p string, mtime time.Time) error {
	// MFMT; servers without it surface a protocol error that the executor
	// downgrades to a warning.
	return t.simpleOp(ctx, "settime", p, func() error { return t.conn.SetTime(t.abs(p), mtime.UTC()) })
}

func (t *FTP) String() string {
	scheme := "ftp"
	if t.cfg.ExplicitTLS {
		scheme = "ftps"
	}

	return fmt.Sprintf("%s://%s%s", scheme, t.cfg.Host, t.abs(""))
}

// simpleOp runs a single mutating round-trip under the mutex.
func (t *FTP) simpleOp(ctx context.Context, op, p string, fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ready(ctx); err != nil {
		return err
	}

	if err := fn(); err != nil {
		return newError(op, p, classifyFTPError(err), err)
	}

	return nil
}

// ready checks context and connection state. Callers hold the mutex.
func (t *FTP) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.conn == nil {
		return newError("connect", "", ErrProtocol, errors.New("not connected"))
	}

	return nil
}

func (t *FTP) abs(rel string) string {
	root := t.cfg.Root
	if root == "" {
		root = "/"
	}

	return path.Join(root, rel)
}

// entryFromFTP converts a protocol listing entry. FTP links and anything
// unrecognized classify as unsupported.
func entryFromFTP(fe *ftp.Entry) Entry {
	e := Entry{
		Name:    fe.Name,
		ModTime: fe.Time.UTC(),
	}

	switch fe.Type {
	case ftp.EntryTypeFile:
		e.Kind = KindFile
		e.Size = int64(fe.Size)
	case ftp.EntryTypeFolder:
		e.Kind = KindDir
	default:
		e.Kind = KindUnsupported
	}

	return e
}

// classifyFTPError maps protocol reply codes and network errors to
// sentinel kinds. 550 covers both "not found" and "no access" in the wild;
// it is treated as NotFound because that is the common case and stat-based
// probing depends on it.
func classifyFTPError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	var proto *textproto.Error
	if errors.As(err, &proto) {
		switch proto.Code {
		case ftp.StatusFileUnavailable:
			return ErrNotFound
		case ftp.StatusNotLoggedIn, ftp.StatusStorNeedAccount:
			return ErrPermissionDenied
		case ftp.StatusNotAvailable, ftp.StatusFileActionIgnored:
			// 421/450 are transient server-side conditions.
			return ErrTimeout
		}
	}

	return ErrProtocol
}

// ftpReader releases the adapter mutex once the data stream is closed.
type ftpReader struct {
	resp io.ReadCloser
	mu   *sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func (r *ftpReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpReader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.resp.Close()
		r.mu.Unlock()
	})

	return r.closeErr
}

// ftpWriter feeds a pipe into STOR and surfaces the transfer result on Close.
type ftpWriter struct {
	pw   *io.PipeWriter
	mu   *sync.Mutex
	done chan error

	closeOnce sync.Once
	closeErr  error
}

func (w *ftpWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *ftpWriter) Close() error {
	w.closeOnce.Do(func() {
		_ = w.pw.Close()
		w.closeErr = <-w.done
		w.mu.Unlock()
	})

	return w.closeErr
}
