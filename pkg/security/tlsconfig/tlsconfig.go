// Package tlsconfig builds TLS settings for the management endpoint from
// certificate files on disk.
package tlsconfig

import (
    "crypto/tls"
    "crypto/x509"
    "errors"
    "fmt"
    "os"
    "sync"
    "time"
)

var ErrMissingKeyPair = errors.New("tlsconfig: certificate and key files are required")

// Options names the PEM files of one side of a management connection.
// Certificates are re-read from disk at most once per Reload, so replacing
// the files rotates them without a restart.
type Options struct {
    Enable             bool          `mapstructure:"enable"`
    CAFile             string        `mapstructure:"ca"`
    CertFile           string        `mapstructure:"cert"`
    KeyFile            string        `mapstructure:"key"`
    ServerName         string        `mapstructure:"server_name"`
    InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
    Reload             time.Duration `mapstructure:"reload"`
}

// Server returns the listener config, or nil when TLS is disabled. With a CA
// file, clients must present a certificate signed by it.
func (o Options) Server() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    if o.CertFile == "" || o.KeyFile == "" { return nil, ErrMissingKeyPair }
    kp := o.keyPair()
    if _, err := kp.get(); err != nil { return nil, err }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12, GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return kp.get() }}
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.ClientCAs = pool
        cfg.ClientAuth = tls.RequireAndVerifyClientCert
    }
    return cfg, nil
}

// Client returns the dialer config, or nil when TLS is disabled. The client
// certificate is optional.
func (o Options) Client() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: o.ServerName, InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.RootCAs = pool
    }
    if o.CertFile != "" && o.KeyFile != "" {
        kp := o.keyPair()
        if _, err := kp.get(); err != nil { return nil, err }
        cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) { return kp.get() }
    }
    return cfg, nil
}

func (o Options) keyPair() *keyPair {
    ttl := o.Reload
    if ttl <= 0 { ttl = 10 * time.Second }
    return &keyPair{cert: o.CertFile, key: o.KeyFile, ttl: ttl}
}

// keyPair caches a certificate loaded lazily on handshake.
type keyPair struct {
    cert, key string
    ttl       time.Duration

    mu     sync.Mutex
    cached *tls.Certificate
    loaded time.Time
}

func (k *keyPair) get() (*tls.Certificate, error) {
    k.mu.Lock(); defer k.mu.Unlock()
    if k.cached != nil && time.Since(k.loaded) < k.ttl { return k.cached, nil }
    cert, err := tls.LoadX509KeyPair(k.cert, k.key)
    if err != nil {
        // keep serving the previous certificate while a rotation is half written
        if k.cached != nil { return k.cached, nil }
        return nil, fmt.Errorf("tlsconfig: load key pair: %w", err)
    }
    k.cached, k.loaded = &cert, time.Now()
    return k.cached, nil
}

func loadPool(path string) (*x509.CertPool, error) {
    pem, err := os.ReadFile(path)
    if err != nil { return nil, fmt.Errorf("tlsconfig: read CA: %w", err) }
    pool := x509.NewCertPool()
    if !pool.AppendCertsFromPEM(pem) { return nil, fmt.Errorf("tlsconfig: no certificates in %s", path) }
    return pool, nil
}
