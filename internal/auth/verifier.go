package auth

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"sync"
	"zephyr/internal/crypto"
	"zephyr/internal/crypto/hash"
	"zephyr/internal/crypto/hkdf"
	"zephyr/internal/global"
	"zephyr/internal/logctx"
	"zephyr/pkg/protocol"
)

// Checks and produces notice checksums with the session key. The derived
// key is fetched on first use and shared read-only afterwards.
type Verifier struct {
	source    KeySource
	realm     string
	principal string
	trusted   []netip.Addr // empty trusts every source

	mutex sync.RWMutex
	key   []byte
}

func NewVerifier(source KeySource, realm string, principal string, trusted []netip.Addr) (verifier *Verifier) {
	verifier = &Verifier{
		source:    source,
		realm:     realm,
		principal: principal,
	}
	for _, addr := range trusted {
		verifier.trusted = append(verifier.trusted, addr.Unmap())
	}
	return
}

// Classifies a received notice:
//   - AuthYes when the checksum matches,
//   - AuthNo when nothing is claimed, the source is not trusted, or the checksum is wrong,
//   - AuthFailed when no key could be obtained to check with.
func (verifier *Verifier) Verify(ctx context.Context, notice *protocol.Notice, from netip.AddrPort) (status protocol.AuthStatus) {
	ctx = logctx.AppendCtxTag(ctx, global.NSAuth)

	if !notice.Auth {
		status = protocol.AuthNo
		return
	}
	if len(verifier.trusted) > 0 && !slices.Contains(verifier.trusted, from.Addr().Unmap()) {
		logctx.LogEvent(ctx, global.VerbosityData, global.WarnLog,
			"authenticated notice %s from untrusted source %s\n", notice.UID, from)
		status = protocol.AuthNo
		return
	}

	key, err := verifier.checksumKey(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"cannot verify notice %s: %v\n", notice.UID, err)
		status = protocol.AuthFailed
		return
	}

	signed, err := notice.SignedBytes()
	if err != nil {
		status = protocol.AuthNo
		return
	}
	expected, err := hash.Keyed(key, signed)
	if err != nil {
		status = protocol.AuthFailed
		return
	}

	if hash.Equal(expected, notice.Checksum) {
		status = protocol.AuthYes
	} else {
		logctx.LogEvent(ctx, global.VerbosityData, global.WarnLog,
			"checksum mismatch on notice %s from %s\n", notice.UID, from)
		status = protocol.AuthNo
	}
	return
}

// Marks an outbound notice authenticated and fills in its checksum
func (verifier *Verifier) Sign(ctx context.Context, notice *protocol.Notice) (err error) {
	key, err := verifier.checksumKey(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", protocol.ErrAuthUnavailable, err)
		return
	}

	notice.Auth = true
	notice.Authenticator = []byte(verifier.principal + "@" + verifier.realm)
	signed, err := notice.Clone().SignedBytes()
	if err != nil {
		return
	}
	notice.Checksum, err = hash.Keyed(key, signed)
	if err != nil {
		err = fmt.Errorf("%w: %w", protocol.ErrAuthUnavailable, err)
		return
	}
	return
}

// Bytes Sign can add to an encoded notice: a fully escaped checksum plus
// the ascii-hex authenticator
func (verifier *Verifier) ChecksumReserve() int {
	identity := len(verifier.principal) + len(verifier.realm) + 1
	return 1 + 2*hash.Size + 3*identity
}

func (verifier *Verifier) checksumKey(ctx context.Context) (key []byte, err error) {
	verifier.mutex.RLock()
	key = verifier.key
	verifier.mutex.RUnlock()
	if key != nil {
		return
	}

	verifier.mutex.Lock()
	defer verifier.mutex.Unlock()
	if verifier.key != nil {
		key = verifier.key
		return
	}
	if verifier.source == nil {
		err = fmt.Errorf("%w: no key source configured", protocol.ErrCredentialUnavailable)
		return
	}

	sessionKey, err := verifier.source.SessionKey(ctx, verifier.realm, verifier.principal)
	if err != nil {
		return
	}
	defer crypto.Memzero(sessionKey)

	key, err = hkdf.DeriveKey(sessionKey, []byte(verifier.realm), hkdf.ChecksumNamespace, hash.Size)
	if err != nil {
		err = fmt.Errorf("%w: %w", protocol.ErrCredentialUnavailable, err)
		return
	}
	verifier.key = key

	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
		"obtained session key for %s@%s\n", verifier.principal, verifier.realm)
	return
}
