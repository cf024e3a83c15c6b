/*
Package security provides the certificate authority and at-rest
encryption a hearth daemon uses to authenticate remote connections.

This package implements two capabilities: a Certificate Authority (CA)
for mutual TLS between daemons and CLI clients, and an AES-256-GCM
primitive that protects the CA's root private key at rest. hearthd's
connection listener presents a daemon certificate minted here; it
requests but does not verify a client certificate.

# Runtime Encryption Key

CA persistence is rooted in a 32-byte runtime encryption key, derived
from the runtime's identity:

	runtimeKey = SHA-256(runtimeID)  // 32 bytes for AES-256

This key encrypts the CA's root private key before it is written to
the CA store. It must be set via SetEncryptionKey before calling
CertAuthority.LoadFromStore or SaveToStore, and is held only in
memory.

# Certificate Authority

## Root CA

The CA uses a hierarchical structure with a long-lived, self-signed
root certificate:

	Root CA (self-signed)
	├── 10-year validity
	├── RSA 4096-bit key
	├── KeyUsage: CertSign, CRLSign
	└── Subject: CN=hearth Root CA, O=hearth runtime

The root certificate is stored in plaintext (it's public); the root
private key is encrypted with the runtime encryption key before being
handed to the CA store.

## Daemon Certificates

The CA issues a certificate per hearthd instance, used for mTLS on its
remote connections:

	Daemon Certificate
	├── 90-day validity
	├── RSA 2048-bit key
	├── KeyUsage: DigitalSignature, KeyEncipherment
	├── ExtKeyUsage: ServerAuth, ClientAuth
	├── Subject: CN={role}-{daemonID}, O=hearth runtime
	├── DNS Names: [daemon hostname]
	└── IP Addresses: [daemon IP]

## Client Certificates

CLI clients receive a ClientAuth-only certificate so a daemon can
authenticate an operator connection without a shared password:

	CLI Certificate
	├── 90-day validity
	├── ExtKeyUsage: ClientAuth
	└── Subject: CN=cli-{clientID}, O=hearth runtime

# Usage

## Setting Up the CA

	import "github.com/cuemby/hearthd/pkg/security"

	store, err := security.OpenCAStore(dataDir)
	if err != nil {
		panic(err)
	}
	defer store.Close()

	key := security.DeriveKeyFromRuntimeID(runtimeID)
	if err := security.SetEncryptionKey(key); err != nil {
		panic(err)
	}

	ca := security.NewCertAuthority(store)
	if err := ca.Initialize(); err != nil {
		panic(err)
	}
	if err := ca.SaveToStore(); err != nil {
		panic(err)
	}

## Issuing and Verifying Certificates

	tlsCert, err := ca.IssueDaemonCertificate(daemonID, "daemon", dnsNames, ipAddresses)
	if err != nil {
		panic(err)
	}

	if err := ca.VerifyCertificate(tlsCert.Leaf); err != nil {
		panic(err)
	}

## Certificate Rotation

	if security.CertNeedsRotation(cert) {
		newCert, err := ca.IssueDaemonCertificate(daemonID, role, dnsNames, ipAddresses)
		if err != nil {
			panic(err)
		}
		certDir, _ := security.GetCertDir(role, daemonID)
		if err := security.SaveCertToFile(newCert, certDir); err != nil {
			panic(err)
		}
	}

# Design Patterns

## Authenticated Encryption

GCM mode provides both confidentiality and integrity: a modified
ciphertext, wrong key, or wrong nonce all fail decryption rather than
silently returning garbage. The nonce is generated fresh per call and
prepended to the returned ciphertext.

## Hierarchical PKI

	Root CA (trust anchor)
	└── Daemon/Client Certificates (issued by root)

The root key is used only to sign new certificates; it never
participates in a live TLS handshake directly.

## Certificate Caching

The CA records each issued certificate in memory, keyed by
daemon/client ID, and GetCachedCert returns it. Issuing does not
consult this cache: every IssueDaemonCertificate and
IssueClientCertificate call generates a new RSA key pair.

# See Also

  - cmd/hearthd - wraps accepted and dialed streams in crypto/tls using
    certificates minted here before handing them to pkg/connection
  - pkg/config - loads the runtime ID used to derive the encryption key
*/
package security
