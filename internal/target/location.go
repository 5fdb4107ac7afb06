package target

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Scheme identifies the protocol of a target location.
type Scheme string

const (
	SchemeFile Scheme = "file"
	SchemeFTP  Scheme = "ftp"
	SchemeFTPS Scheme = "ftps"
	SchemeSFTP Scheme = "sftp"
)

// Location is a parsed target address such as "ftp://user@host:2121/pub"
// or a plain filesystem path. Password is populated only when the URL
// carried one inline; interactive prompting is the caller's concern.
type Location struct {
	Scheme   Scheme
	Host     string
	Port     int
	User     string
	Password string
	Path     string
}

// IsRemote reports whether the location needs a network protocol.
func (l Location) IsRemote() bool {
	return l.Scheme != SchemeFile
}

// String renders the location without credentials.
func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return l.Path
	}

	host := l.Host
	if l.Port != 0 {
		host = fmt.Sprintf("%s:%d", l.Host, l.Port)
	}

	return fmt.Sprintf("%s://%s%s", l.Scheme, host, l.Path)
}

// ParseLocation parses a target address. Anything without a recognized
// scheme prefix is a local filesystem path, taken verbatim.
func ParseLocation(raw string) (Location, error) {
	if !hasSchemePrefix(raw) {
		return Location{Scheme: SchemeFile, Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parsing target %q: %w", raw, err)
	}

	scheme := Scheme(strings.ToLower(u.Scheme))
	switch scheme {
	case SchemeFTP, SchemeFTPS, SchemeSFTP:
	case SchemeFile:
		return Location{Scheme: SchemeFile, Path: u.Path}, nil
	default:
		return Location{}, fmt.Errorf("unsupported scheme %q in %q", u.Scheme, raw)
	}

	loc := Location{
		Scheme: scheme,
		Host:   u.Hostname(),
		Path:   u.Path,
	}

	if loc.Host == "" {
		return Location{}, fmt.Errorf("missing host in %q", raw)
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Location{}, fmt.Errorf("invalid port in %q: %w", raw, err)
		}

		loc.Port = port
	}

	if u.User != nil {
		loc.User = u.User.Username()
		loc.Password, _ = u.User.Password()
	}

	return loc, nil
}

// hasSchemePrefix distinguishes URLs from plain paths (including Windows
// drive letters, which url.Parse would misread as a scheme).
func hasSchemePrefix(raw string) bool {
	for _, s := range []string{"file://", "ftp://", "ftps://", "sftp://"} {
		if strings.HasPrefix(strings.ToLower(raw), s) {
			return true
		}
	}

	return false
}

// Options carries cross-protocol settings applied when a Location is
// turned into a concrete Target.
type Options struct {
	Timeout         time.Duration
	TLSInsecure     bool
	KeyFile         string
	KnownHostsFile  string
	InsecureHostKey bool
}

// New builds the concrete adapter for a location. The returned Target is
// not yet connected.
func New(loc Location, opts Options) (Target, error) {
	switch loc.Scheme {
	case SchemeFile:
		return NewLocal(loc.Path), nil

	case SchemeFTP, SchemeFTPS:
		return NewFTP(FTPConfig{
			Host:        loc.Host,
			Port:        loc.Port,
			User:        loc.User,
			Password:    loc.Password,
			Root:        loc.Path,
			ExplicitTLS: loc.Scheme == SchemeFTPS,
			TLSInsecure: opts.TLSInsecure,
			Timeout:     opts.Timeout,
		}), nil

	case SchemeSFTP:
		return NewSFTP(SFTPConfig{
			Host:            loc.Host,
			Port:            loc.Port,
			User:            loc.User,
			Password:        loc.Password,
			Root:            loc.Path,
			KeyFile:         opts.KeyFile,
			KnownHostsFile:  opts.KnownHostsFile,
			InsecureHostKey: opts.InsecureHostKey,
			Timeout:         opts.Timeout,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported scheme %q", loc.Scheme)
	}
}
