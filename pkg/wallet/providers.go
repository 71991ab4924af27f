package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"broker-swap/pkg/keypair"
	"broker-swap/pkg/types"
)

// keystore signs with a locally held secret.
type keystore struct {
	kp *keypair.Keypair
}

func openKeystore(secret string) (*keystore, error) {
	if secret == "" {
		return nil, errors.New("no wallet secret configured")
	}
	kp, err := keypair.FromSecret(secret)
	if err != nil {
		return nil, err
	}
	return &keystore{kp: kp}, nil
}

func (k *keystore) address() string {
	return k.kp.PublicKey()
}

func (k *keystore) sign(tx *types.Transaction) (*types.Transaction, error) {
	if err := tx.Sign(k.kp); err != nil {
		return nil, err
	}
	return tx, nil
}

// ConnectResult is returned by stellar_connect.
type ConnectResult struct {
	Address string `json:"address"`
	Session string `json:"session"`
}

// SignXDRRequest is the stellar_signXDR parameter.
type SignXDRRequest struct {
	XDR string `json:"xdr"`
	// Network is the passphrase the envelope is signed for.
	Network string `json:"network"`
	Session string `json:"session,omitempty"`
}

// SignXDRResult is the stellar_signXDR result.
type SignXDRResult struct {
	SignedXDR string `json:"signedXDR"`
}

// Dialer opens the JSON-RPC connection of a wallet_connect session.
// Tests replace it with an in-process server.
var Dialer = func(ctx context.Context, url string) (*rpc.Client, error) {
	return rpc.DialContext(ctx, url)
}

// remoteSession signs through a remote wallet over JSON-RPC.
type remoteSession struct {
	client *rpc.Client
}

func dialRemote(ctx context.Context, url string) (*remoteSession, error) {
	if url == "" {
		return nil, errors.New("no wallet_connect endpoint configured")
	}
	client, err := Dialer(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet session: %w", err)
	}
	return &remoteSession{client: client}, nil
}

func (r *remoteSession) connect(ctx context.Context) (ConnectResult, error) {
	var res ConnectResult
	if err := r.client.CallContext(ctx, &res, "stellar_connect"); err != nil {
		return ConnectResult{}, fmt.Errorf("failed to open wallet session: %w", err)
	}
	return res, nil
}

func (r *remoteSession) signXDR(ctx context.Context, session string, tx *types.Transaction) (*types.Transaction, error) {
	envelope, err := tx.Envelope()
	if err != nil {
		return nil, err
	}
	var res SignXDRResult
	if err := r.client.CallContext(ctx, &res, "stellar_signXDR", SignXDRRequest{XDR: envelope, Network: tx.Passphrase(), Session: session}); err != nil {
		return nil, fmt.Errorf("stellar_signXDR: %w", err)
	}
	if res.SignedXDR == "" {
		return nil, nil
	}
	return types.ParseEnvelope(tx.Passphrase(), res.SignedXDR)
}

func (r *remoteSession) close() {
	r.client.Close()
}
