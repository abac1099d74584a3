package bootstrap

import (
    "context"
    "crypto/ecdsa"
    "crypto/elliptic"
    "crypto/rand"
    "crypto/x509"
    "crypto/x509/pkix"
    "encoding/pem"
    "math/big"
    "net"
    "os"
    "path/filepath"
    "testing"
    "time"

    "go.uber.org/zap/zaptest"

    "github.com/amirimatin/go-spantree/pkg/config"
    "github.com/amirimatin/go-spantree/pkg/security/tlsconfig"
    "github.com/amirimatin/go-spantree/pkg/transport/mem"
)

func TestRun_MutualTLSStatus(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    ca, srvCrt, srvKey, cliCrt, cliKey := makeTestCerts(t, t.TempDir())

    cfg := memConfig("0AA", "hub.example.net")
    cfg.Mgmt.TLS = tlsconfig.Options{Enable: true, CAFile: ca, CertFile: srvCrt, KeyFile: srvKey}
    d, err := Run(ctx, cfg, zaptest.NewLogger(t), WithMemNetwork(mem.NewNetwork()))
    if err != nil { t.Fatalf("run: %v", err) }
    defer d.Close()

    good := config.MgmtConfig{Proto: "http", TLS: tlsconfig.Options{Enable: true, CAFile: ca, CertFile: cliCrt, KeyFile: cliKey}}
    cl, err := NewStatusClient(good, time.Second)
    if err != nil { t.Fatalf("client: %v", err) }
    if _, err := cl.GetStatus(ctx, d.MgmtAddr()); err != nil { t.Fatalf("status over mTLS: %v", err) }

    anon := config.MgmtConfig{Proto: "http", TLS: tlsconfig.Options{Enable: true, CAFile: ca}}
    cl, err = NewStatusClient(anon, time.Second)
    if err != nil { t.Fatalf("client: %v", err) }
    if _, err := cl.GetStatus(ctx, d.MgmtAddr()); err == nil { t.Fatalf("expected handshake failure without client certificate") }
}

func makeTestCerts(t *testing.T, dir string) (caCrt, srvCrt, srvKey, cliCrt, cliKey string) {
    t.Helper()
    caPriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
    if err != nil { t.Fatal(err) }
    caTpl := &x509.Certificate{
        SerialNumber:          big.NewInt(1),
        Subject:               pkix.Name{CommonName: "spantree-test-ca"},
        NotBefore:             time.Now().Add(-time.Hour),
        NotAfter:              time.Now().Add(24 * time.Hour),
        KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
        IsCA:                  true,
        BasicConstraintsValid: true,
    }
    caDER, err := x509.CreateCertificate(rand.Reader, caTpl, caTpl, &caPriv.PublicKey, caPriv)
    if err != nil { t.Fatal(err) }
    caCrt = filepath.Join(dir, "ca.crt")
    writePEM(t, caCrt, "CERTIFICATE", caDER)

    leaf := func(cn string, usage x509.ExtKeyUsage, serial int64) (string, string) {
        priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
        if err != nil { t.Fatal(err) }
        tpl := &x509.Certificate{
            SerialNumber: big.NewInt(serial),
            Subject:      pkix.Name{CommonName: cn},
            NotBefore:    time.Now().Add(-time.Hour),
            NotAfter:     time.Now().Add(24 * time.Hour),
            KeyUsage:     x509.KeyUsageDigitalSignature,
            ExtKeyUsage:  []x509.ExtKeyUsage{usage},
            IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
        }
        der, err := x509.CreateCertificate(rand.Reader, tpl, caTpl, &priv.PublicKey, caPriv)
        if err != nil { t.Fatal(err) }
        kder, err := x509.MarshalECPrivateKey(priv)
        if err != nil { t.Fatal(err) }
        crt, key := filepath.Join(dir, cn+".crt"), filepath.Join(dir, cn+".key")
        writePEM(t, crt, "CERTIFICATE", der)
        writePEM(t, key, "EC PRIVATE KEY", kder)
        return crt, key
    }
    srvCrt, srvKey = leaf("server", x509.ExtKeyUsageServerAuth, 2)
    cliCrt, cliKey = leaf("client", x509.ExtKeyUsageClientAuth, 3)
    return
}

func writePEM(t *testing.T, path, typ string, der []byte) {
    t.Helper()
    if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der}), 0o600); err != nil {
        t.Fatalf("write %s: %v", path, err)
    }
}
